package authority

import (
	"github.com/gagliardetto/solana-go"
)

var (
	// SPL Associated Token Account program
	associatedTokenProgramID = solana.MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
)

// AssociatedTokenProgramID returns the SPL associated token account program.
func AssociatedTokenProgramID() solana.PublicKey {
	return associatedTokenProgramID
}

// FindAssociatedTokenAddress derives the ATA PDA for (owner, mint).
// PDA owners such as the pool are allowed off-curve owners.
func FindAssociatedTokenAddress(owner, mint solana.PublicKey) (ata solana.PublicKey, bump uint8, err error) {
	// Seeds: [owner, token_program, mint]
	return solana.FindProgramAddress(
		[][]byte{
			owner.Bytes(),
			solana.TokenProgramID.Bytes(),
			mint.Bytes(),
		},
		associatedTokenProgramID,
	)
}

package auth

import "golang.org/x/crypto/bcrypt"

// PasswordCost is the bcrypt work factor used for new hashes. Verification
// reads the cost from the hash itself.
const PasswordCost = 12

// dummyHash is built when the package loads so the first unknown-account
// login pays for one comparison like every other.
var dummyHash = mustHash("schoolhub-placeholder")

func mustHash(plaintext string) []byte {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), PasswordCost)
	if err != nil {
		panic(err)
	}
	return hashed
}

// HashPassword returns a self-describing bcrypt hash of plaintext.
func HashPassword(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), PasswordCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyPassword reports whether plaintext matches hashed. Malformed hashes
// never verify.
func VerifyPassword(plaintext, hashed string) bool {
	if hashed == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plaintext)) == nil
}

// BurnPasswordCheck performs a comparison against a fixed hash so a login
// for an unknown account costs the same as one for a known account.
func BurnPasswordCheck(plaintext string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(plaintext))
}

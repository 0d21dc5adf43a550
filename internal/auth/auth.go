package auth

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"predictionmarket/internal/logger"
)

// ContextKey is the key type for context values
type ContextKey string

const (
	// AddressKey is the context key for the caller's wallet address
	AddressKey ContextKey = "wallet_address"
)

// Request headers carrying a wallet login.
const (
	HeaderAddress   = "X-Wallet-Address"
	HeaderTimestamp = "X-Wallet-Timestamp"
	HeaderSignature = "X-Wallet-Signature"
)

// DefaultMaxAge bounds how old a signed login may be.
const DefaultMaxAge = 24 * time.Hour

// LoginMessage is the text a wallet signs with personal_sign.
func LoginMessage(timestamp int64) string {
	return fmt.Sprintf("predictionmarket login %d", timestamp)
}

// Verifier checks EIP-191 personal signatures of LoginMessage.
type Verifier struct {
	maxAge time.Duration
	now    func() time.Time
}

func NewVerifier(maxAge time.Duration) *Verifier {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Verifier{maxAge: maxAge, now: time.Now}
}

// Verify recovers the signer of LoginMessage(timestamp) and checks that it is
// the claimed address and that the login is neither expired nor from the future.
func (v *Verifier) Verify(address, timestamp, signature string) (common.Address, error) {
	if !common.IsHexAddress(address) {
		return common.Address{}, fmt.Errorf("invalid address")
	}
	claimed := common.HexToAddress(address)

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid timestamp format")
	}
	age := v.now().Sub(time.Unix(ts, 0))
	if age > v.maxAge {
		return common.Address{}, fmt.Errorf("login is too old")
	}
	if age < -time.Minute {
		return common.Address{}, fmt.Errorf("login is from the future")
	}

	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(sig))
	}
	// Wallets return V as 27/28; recovery wants 0/1.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	hash := accounts.TextHash([]byte(LoginMessage(ts)))
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	if signer := crypto.PubkeyToAddress(*pub); signer != claimed {
		return common.Address{}, fmt.Errorf("signature does not match address")
	}
	return claimed, nil
}

// Middleware returns an HTTP middleware that authenticates wallet logins.
// Read-only requests without credentials pass through anonymously; handlers
// that need a caller check GetAddressFromContext.
func Middleware(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip auth for non-API routes (static files)
			if !strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/api/ping" {
				next.ServeHTTP(w, r)
				return
			}

			address := r.Header.Get(HeaderAddress)
			if address == "" {
				if r.Method == http.MethodGet {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "Unauthorized: missing "+HeaderAddress+" header", http.StatusUnauthorized)
				return
			}

			addr, err := v.Verify(address, r.Header.Get(HeaderTimestamp), r.Header.Get(HeaderSignature))
			if err != nil {
				logger.Debug(address, "auth_failed", err.Error())
				http.Error(w, "Unauthorized: invalid wallet signature", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithAddress(r.Context(), addr)))
		})
	}
}

// ContextWithAddress adds the caller's address to the context
func ContextWithAddress(ctx context.Context, addr common.Address) context.Context {
	return context.WithValue(ctx, AddressKey, addr)
}

// GetAddressFromContext retrieves the caller's address from the context
func GetAddressFromContext(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(AddressKey).(common.Address)
	return addr, ok
}

package identity

import "time"

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleDual   Role = "dual"
)

// Agent is the domain representation of a registered agent. It mirrors the
// agents table and carries no JSON annotations so presentation layers shape it
// themselves.
type Agent struct {
	ID            string
	Handle        string
	DisplayName   string
	WalletAddress string
	SecretHash    string
	Role          Role
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RegisterRequest contains agent registration data supplied by callers. Secret
// is an API credential, not a wallet key: custody stays outside this system.
type RegisterRequest struct {
	Handle        string `json:"handle"`
	DisplayName   string `json:"displayName"`
	WalletAddress string `json:"walletAddress"`
	Secret        string `json:"secret"`
	Role          Role   `json:"role"`
}

// LoginRequest contains agent login credentials.
type LoginRequest struct {
	Handle string `json:"handle"`
	Secret string `json:"secret"`
}

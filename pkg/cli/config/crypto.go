package config

import (
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/secmon-lab/kottos/pkg/domain/interfaces"
	"github.com/secmon-lab/kottos/pkg/service/crypto"
)

// Crypto holds CLI flags for assignee confidentiality
type Crypto struct {
	mode   string
	secret string
}

func (x *Crypto) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "assignee-storage-mode",
			Usage:       "Assignee storage mode (plain or enc_v1)",
			Category:    "Crypto",
			Value:       crypto.FormatPlain,
			Sources:     cli.EnvVars("KOTTOS_ASSIGNEE_STORAGE_MODE"),
			Destination: &x.mode,
		},
		&cli.StringFlag{
			Name:        "assignee-secret",
			Usage:       "Secret used to derive the assignee encryption key (required for enc_v1)",
			Category:    "Crypto",
			Sources:     cli.EnvVars("KOTTOS_ASSIGNEE_SECRET"),
			Destination: &x.secret,
		},
	}
}

func (x Crypto) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("mode", x.mode),
		slog.Int("secret.len", len(x.secret)),
	)
}

// Configure builds the assignee cipher. enc_v1 without a secret is a
// misconfiguration and fails here rather than degrading at runtime.
func (x *Crypto) Configure() (interfaces.AssigneeCipher, error) {
	switch x.mode {
	case crypto.FormatPlain:
	case crypto.FormatEncV1:
		if x.secret == "" {
			return nil, goerr.New("assignee-secret is required for enc_v1 mode")
		}
	default:
		return nil, goerr.New("invalid assignee storage mode", goerr.V("mode", x.mode))
	}

	return crypto.New(x.mode, x.secret), nil
}

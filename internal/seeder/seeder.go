// Package seeder creates development users, one per tier, and prints a
// bearer token for each when an HS256 secret is configured.
package seeder

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vnmchuo/interview-gateway/internal/auth"
	"github.com/vnmchuo/interview-gateway/internal/tier"
)

const devTokenTTL = 24 * time.Hour

// DevUsers maps each tier to the fixed id of its development user.
var DevUsers = map[tier.Name]string{
	tier.Free:    "00000000-0000-0000-0000-000000000001",
	tier.Pro:     "00000000-0000-0000-0000-000000000002",
	tier.Premium: "00000000-0000-0000-0000-000000000003",
}

type TierSetter interface {
	SetTier(ctx context.Context, userID, tierName string) error
}

// SeedDevUsers assigns every development user its tier. Tokens are only
// signed when jwtSecret is set. Returns the tokens by tier.
func SeedDevUsers(ctx context.Context, store TierSetter, jwtSecret string, logger *zap.Logger) map[tier.Name]string {
	tokens := make(map[tier.Name]string)
	for _, name := range tier.Order {
		userID := DevUsers[name]
		if err := store.SetTier(ctx, userID, string(name)); err != nil {
			logger.Warn("failed to seed dev user, skipping",
				zap.String("tier", string(name)),
				zap.Error(err),
			)
			continue
		}

		fields := []zap.Field{zap.String("tier", string(name)), zap.String("user_id", userID)}
		if jwtSecret != "" {
			token, err := auth.SignDevToken(jwtSecret, userID, devTokenTTL)
			if err != nil {
				logger.Warn("failed to sign dev token", zap.String("tier", string(name)), zap.Error(err))
			} else {
				tokens[name] = token
				fields = append(fields, zap.String("token", token))
			}
		}
		logger.Info("dev user seeded", fields...)
	}
	return tokens
}

package auth

import (
	"context"

	"collab-hub/domain"
)

// JWTAuthenticator resolves session tokens issued by TokenIssuer.
type JWTAuthenticator struct {
	issuer TokenIssuer
}

func NewJWTAuthenticator(issuer TokenIssuer) JWTAuthenticator {
	return JWTAuthenticator{issuer: issuer}
}

func (a JWTAuthenticator) Resolve(ctx context.Context, credential string) (domain.Identity, error) {
	if err := ctx.Err(); err != nil {
		return domain.Identity{}, err
	}
	claims, err := a.issuer.ValidateToken(credential)
	if err != nil {
		return domain.Identity{}, err
	}
	identity := claims.Identity()
	if err := ValidateIdentity(identity); err != nil {
		return domain.Identity{}, err
	}
	return identity, nil
}

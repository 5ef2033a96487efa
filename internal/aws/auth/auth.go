package auth

import "errors"

var ErrMissingClaims = errors.New("missing authorizer claims")

// UserIdFromAuthorizer reads the `sub` claim that the API Gateway JWT
// authorizer attaches to the request context.
func UserIdFromAuthorizer(authorizer map[string]interface{}) (string, error) {
	jwt, ok := authorizer["jwt"].(map[string]interface{})
	if !ok {
		return "", ErrMissingClaims
	}
	claims, ok := jwt["claims"].(map[string]interface{})
	if !ok {
		return "", ErrMissingClaims
	}
	userId, ok := claims["sub"].(string)
	if !ok || userId == "" {
		return "", ErrMissingClaims
	}
	return userId, nil
}

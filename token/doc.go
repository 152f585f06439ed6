// Package token manages JWT issuance and verification for access and
// refresh tokens using configured signing keys and strict validation
// semantics. Both token kinds share one claim shape distinguished by a
// "type" claim so a refresh token can never pass as an access token.
package token

// Package blacklist tracks revoked JWT IDs in Redis. A revocation entry
// maps the jti to a reason and lives exactly as long as the token it voids,
// so the set cleans itself up. A per-user sorted set of outstanding access
// token IDs (scored by expiry) supports revoking every live token of a user
// in one call, which backs logout and password-reset containment.
package blacklist

package common

// AccessTokenHeaderName is the HTTP header used to carry the access token on
// outbound requests to the sync gateway.
const AccessTokenHeaderName = "Authorization"

// AccessTokenScheme prefixes the token value in the authorization header.
const AccessTokenScheme = "Bearer"

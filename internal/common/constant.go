package common

// AuthorizationHeaderName is the HTTP header used to carry the access token
// on authenticated requests, in the form "Bearer <token>".
const AuthorizationHeaderName = "Authorization"

package common

// AuthorizationHeaderName and BearerPrefix describe how the access token
// travels on backup requests.
const (
	AuthorizationHeaderName = "Authorization"
	BearerPrefix            = "Bearer "
)

// AdminUsername is the placeholder login of the single operator account.
const AdminUsername = "admin"

// AdminRole is the role assigned to the bootstrap account.
const AdminRole = "admin"

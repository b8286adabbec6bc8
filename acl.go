package zk

// Well-known ACL identities and lists, mirroring the handful every
// coordination-service client ships (spec.md §6 "SetACL").
const (
	schemeWorld  = "world"
	schemeAuth   = "auth"
	anyoneID     = "anyone"
)

// OpenACLUnsafe grants every permission to anyone; the default for nodes
// that don't care about access control.
var OpenACLUnsafe = []ACL{{Perms: PermAll, Scheme: schemeWorld, ID: anyoneID}}

// ReadACLUnsafe grants read-only access to anyone.
var ReadACLUnsafe = []ACL{{Perms: PermRead, Scheme: schemeWorld, ID: anyoneID}}

// CreatorAllACL grants every permission to whichever identity created the
// node, resolved via the "auth" scheme against the session's accumulated
// AddAuth credentials.
var CreatorAllACL = []ACL{{Perms: PermAll, Scheme: schemeAuth, ID: ""}}

package auth

// Checker answers the single authorization question this service needs:
// whether a caller may moderate flags. It is deliberately opaque; wire in
// whatever identity system the deployment has.
type Checker interface {
	IsAdmin(userID string) bool
}

// StaticChecker is a config-backed Checker over a fixed admin list.
type StaticChecker struct {
	admins map[string]struct{}
}

func NewStaticChecker(admins []string) *StaticChecker {
	set := make(map[string]struct{}, len(admins))
	for _, a := range admins {
		set[a] = struct{}{}
	}
	return &StaticChecker{admins: set}
}

func (c *StaticChecker) IsAdmin(userID string) bool {
	_, ok := c.admins[userID]
	return ok
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(userID string) bool

func (f CheckerFunc) IsAdmin(userID string) bool { return f(userID) }

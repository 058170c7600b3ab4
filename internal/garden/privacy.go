package garden

// CircleLookup reports whether the viewer sits in the author's circle for
// the given scope.
type CircleLookup func(scope Privacy) (bool, error)

// IsVisible decides whether viewerID may see u.
func IsVisible(u Unit, viewerID string, inCircle CircleLookup) (bool, error) {
	if viewerID != "" && viewerID == u.AuthorID {
		return true, nil
	}
	switch u.Privacy {
	case Public:
		return true, nil
	case Private:
		return false, nil
	case Connections, InnerCircle, Community:
		if viewerID == "" || inCircle == nil {
			return false, nil
		}
		return inCircle(u.Privacy)
	default:
		return false, nil
	}
}

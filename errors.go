package pathfinder

import (
	"github.com/pkg/errors"

	"github.com/autom8ter/pathfinder/auth"
)

var (
	// ErrUnauthorized is returned by AddRoute when the caller is not the admin.
	ErrUnauthorized = auth.ErrUnauthorized
	// ErrReplayed is returned by AddRoute when a WithSequence value was already used by the caller.
	ErrReplayed = auth.ErrReplayedRequest
	// ErrAdminMismatch is returned by New when the store was constructed by a different admin.
	ErrAdminMismatch = errors.New("pathfinder: store belongs to a different admin")
	// ErrNoAdmin is returned by New when opening an unconstructed store without a creator.
	ErrNoAdmin = errors.New("pathfinder: no admin recorded and no creator given")
	// ErrNoRoute is returned by FindCheapestRoute when the destination is unreachable.
	ErrNoRoute = errors.New("pathfinder: destination unreachable")
)

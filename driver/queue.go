package driver

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// QueueRole names the purpose a queue is used for. Several roles may share
// one hardware queue.
type QueueRole int

const (
	Graphics QueueRole = iota
	Present
	Transfer
	Compute

	queueRoleCount
)

// QueueRoles lists every role in index order.
var QueueRoles = [...]QueueRole{Graphics, Present, Transfer, Compute}

func (r QueueRole) Valid() bool {
	return r >= Graphics && r < queueRoleCount
}

func (r QueueRole) String() string {
	switch r {
	case Graphics:
		return "graphics"
	case Present:
		return "present"
	case Transfer:
		return "transfer"
	case Compute:
		return "compute"
	}
	return fmt.Sprintf("QueueRole(%d)", int(r))
}

// QueueFamily is what family selection needs to know about one queue family.
type QueueFamily struct {
	Flags      core1_0.QueueFlags
	QueueCount int
	Present    bool
}

// QueueFamilies maps every role to a family index.
type QueueFamilies [queueRoleCount]int

// Unique returns the distinct family indices in role order.
func (f QueueFamilies) Unique() []int {
	var out []int
	seen := map[int]bool{}
	for _, idx := range f {
		if !seen[idx] {
			seen[idx] = true
			out = append(out, idx)
		}
	}
	return out
}

var ErrNoQueueFamily = errors.New("no suitable queue family")

// SelectQueueFamilies picks a family for every role.
//
// Graphics is the first family with graphics support. Present prefers the
// graphics family and otherwise takes the first family that can present.
// Transfer and compute prefer a dedicated family (no graphics and no other
// work bit), then any separate family without graphics, and fall back to the
// graphics family, which always supports both.
func SelectQueueFamilies(families []QueueFamily) (QueueFamilies, error) {
	var out QueueFamilies

	graphics := -1
	for i, f := range families {
		if f.QueueCount > 0 && f.Flags&core1_0.QueueGraphics != 0 {
			graphics = i
			break
		}
	}
	if graphics < 0 {
		return out, errors.Wrap(ErrNoQueueFamily, "graphics")
	}
	out[Graphics] = graphics

	present := -1
	if families[graphics].Present {
		present = graphics
	} else {
		for i, f := range families {
			if f.QueueCount > 0 && f.Present {
				present = i
				break
			}
		}
	}
	if present < 0 {
		return out, errors.Wrap(ErrNoQueueFamily, "present")
	}
	out[Present] = present

	out[Transfer] = separateFamily(families, core1_0.QueueTransfer, core1_0.QueueCompute, graphics)
	out[Compute] = separateFamily(families, core1_0.QueueCompute, core1_0.QueueTransfer, graphics)
	return out, nil
}

func separateFamily(families []QueueFamily, want, other core1_0.QueueFlags, fallback int) int {
	separate := -1
	for i, f := range families {
		if f.QueueCount == 0 || f.Flags&want == 0 || f.Flags&core1_0.QueueGraphics != 0 {
			continue
		}
		if f.Flags&other == 0 {
			return i
		}
		if separate < 0 {
			separate = i
		}
	}
	if separate >= 0 {
		return separate
	}
	return fallback
}

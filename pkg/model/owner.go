package model

import "strconv"

// Owner describes one process holding a socket open. Path is only set for
// unix sockets that are bound to a filesystem name.
type Owner struct {
	Command string
	PID     int
	Path    string
}

func (o Owner) String() string {
	s := o.Command + "," + strconv.Itoa(o.PID)
	if o.Path != "" {
		s += "," + o.Path
	}
	return s
}

// Owners is an insertion-ordered owner set. A socket may be held by several
// processes (forked servers, inherited descriptors).
type Owners []Owner

// Add appends o unless an equal descriptor is already present.
func (os Owners) Add(o Owner) Owners {
	for _, have := range os {
		if have == o {
			return os
		}
	}
	return append(os, o)
}

package domain

import "errors"

type (
	RoomID    string
	Direction string
)

var ErrSiteNotFound = errors.New("site not found")

const (
	North Direction = "n"
	South Direction = "s"
	East  Direction = "e"
	West  Direction = "w"
	Up    Direction = "u"
	Down  Direction = "d"
)

// ConnectionDetails describe how to reach a room's network endpoint.
type ConnectionDetails struct {
	Type   string `json:"type"`
	Target string `json:"target"`
	Token  string `json:"token,omitempty"`
}

func (c *ConnectionDetails) Equals(other *ConnectionDetails) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.Type == other.Type && c.Target == other.Target
}

// RoomInfo is the registered content of a site. A site with no RoomInfo
// exists in the directory but has nothing running behind it.
type RoomInfo struct {
	Name              string             `json:"name"`
	FullName          string             `json:"fullName"`
	Description       string             `json:"description"`
	ConnectionDetails *ConnectionDetails `json:"connectionDetails,omitempty"`
}

// Exit is one edge out of a site, carrying enough of the target's
// description to build a fallback when the directory is unavailable.
type Exit struct {
	ID                RoomID             `json:"_id"`
	Name              string             `json:"name"`
	FullName          string             `json:"fullName"`
	Door              string             `json:"door,omitempty"`
	ConnectionDetails *ConnectionDetails `json:"connectionDetails,omitempty"`
}

// Exits holds the six possible edges of a site.
type Exits struct {
	N *Exit `json:"n,omitempty"`
	S *Exit `json:"s,omitempty"`
	E *Exit `json:"e,omitempty"`
	W *Exit `json:"w,omitempty"`
	U *Exit `json:"u,omitempty"`
	D *Exit `json:"d,omitempty"`
}

func (e *Exits) Get(dir Direction) *Exit {
	if e == nil {
		return nil
	}
	switch dir {
	case North:
		return e.N
	case South:
		return e.S
	case East:
		return e.E
	case West:
		return e.W
	case Up:
		return e.U
	case Down:
		return e.D
	}
	return nil
}

func (e *Exits) Set(dir Direction, exit *Exit) {
	switch dir {
	case North:
		e.N = exit
	case South:
		e.S = exit
	case East:
		e.E = exit
	case West:
		e.W = exit
	case Up:
		e.U = exit
	case Down:
		e.D = exit
	}
}

// List returns direction -> door description for every populated exit.
func (e *Exits) List() map[string]string {
	out := make(map[string]string)
	if e == nil {
		return out
	}
	for _, dir := range []Direction{North, South, East, West, Up, Down} {
		if exit := e.Get(dir); exit != nil {
			door := exit.Door
			if door == "" {
				door = exit.FullName
			}
			out[string(dir)] = door
		}
	}
	return out
}

// Opposite gives the way back, used to synthesize return exits.
func Opposite(dir Direction) Direction {
	switch dir {
	case North:
		return South
	case South:
		return North
	case East:
		return West
	case West:
		return East
	case Up:
		return Down
	case Down:
		return Up
	}
	return dir
}

// Site is a directory record: a room id plus whatever content and exits
// the directory knows about it.
type Site struct {
	ID    RoomID    `json:"_id"`
	Owner string    `json:"owner,omitempty"`
	Info  *RoomInfo `json:"info,omitempty"`
	Exits *Exits    `json:"exits,omitempty"`
}

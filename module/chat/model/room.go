package model

import (
	"strings"
	"time"

	"github.com/samber/lo"
)

// displayNameMembers is how many member names an unnamed room shows.
const displayNameMembers = 3

// Room is a chat room. The admin is always a member; Members keeps join order.
type Room struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"` // optional
	AdminID   string    `json:"admin_id" db:"admin_id"`
	Members   []string  `json:"members" db:"-"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (r *Room) HasMember(userID string) bool {
	return lo.Contains(r.Members, userID)
}

// DisplayName is the room name, or the first member usernames joined by ", ".
func DisplayName(name string, memberNames []string) string {
	if name != "" {
		return name
	}
	if len(memberNames) > displayNameMembers {
		memberNames = memberNames[:displayNameMembers]
	}
	return strings.Join(memberNames, ", ")
}

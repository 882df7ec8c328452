package locks

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind namespaces lock keys by entity type so ids from different tables can
// never collide in the lock keyspace.
type Kind string

const (
	KindJobneed Kind = "jobneed"
	KindParent  Kind = "parent_job"
	KindTicket  Kind = "ticket"
	KindAsset   Kind = "asset"
)

// Key identifies one named lock. Construct via the typed helpers below
// rather than formatting strings at call sites.
type Key struct {
	Kind Kind
	ID   uuid.UUID
}

func (k Key) String() string {
	return fmt.Sprintf("upkeep:lock:%s:%s", k.Kind, k.ID)
}

func JobneedKey(id uuid.UUID) Key { return Key{Kind: KindJobneed, ID: id} }

// ParentKey serializes all writers touching a tour and its checkpoints.
func ParentKey(id uuid.UUID) Key { return Key{Kind: KindParent, ID: id} }

func TicketKey(id uuid.UUID) Key { return Key{Kind: KindTicket, ID: id} }

func AssetKey(id uuid.UUID) Key { return Key{Kind: KindAsset, ID: id} }

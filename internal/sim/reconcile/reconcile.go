// Package reconcile drives remote proxy actors from snapshots relayed by the hub.
package reconcile

import (
	"log"

	"github.com/go-gl/mathgl/mgl64"

	"roomsync.ai/internal/protocol"
	"roomsync.ai/internal/sim/entity"
)

// Host creates and owns actors. *entity.Simulation implements it.
type Host interface {
	Registry() *entity.Registry
	NewEntity(id string, kind entity.Kind, model string) *entity.Entity
}

// Reconciler is not safe for concurrent use; call it from the update tick only.
type Reconciler struct {
	host    Host
	log     *log.Logger
	localID string
}

func New(host Host, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.Default()
	}
	return &Reconciler{host: host, log: logger}
}

// SetLocalID records the id the hub assigned to this client. Snapshots for it are ignored.
func (r *Reconciler) SetLocalID(id string) { r.localID = id }

func (r *Reconciler) LocalID() string { return r.localID }

// ApplySnapshot overwrites the proxy for snap.ID with the snapshot's pose and state,
// creating the proxy on first sight.
func (r *Reconciler) ApplySnapshot(snap protocol.Snapshot) {
	if snap.ID == "" || snap.ID == r.localID {
		return
	}
	reg := r.host.Registry()
	e := reg.Proxy(snap.ID)
	if e == nil {
		if other := reg.Get(snap.ID); other != nil {
			r.log.Printf("reconcile: id %s collides with a local %s actor; ignored", snap.ID, other.Kind)
			return
		}
		e = r.host.NewEntity(snap.ID, entity.KindRemote, snap.Model)
	}
	e.Position = mgl64.Vec3(snap.Position)
	e.Rotation = mgl64.Vec3(snap.Rotation)

	// Death only comes from local collisions; a relayed death label is not replayed on proxies.
	if snap.State == entity.StateDeath {
		return
	}
	e.Request(entity.Transition{
		State:     snap.State,
		TimeScale: snap.TimeScale,
		WalkSpeed: snap.WalkSpeed,
		// Same label may still carry a new speed or direction.
		Force: snap.State == e.State,
	})
}

// RemoveProxy forgets the proxy for id. Removing an unknown id is a no-op.
func (r *Reconciler) RemoveProxy(id string) {
	reg := r.host.Registry()
	if reg.Proxy(id) == nil {
		return
	}
	reg.Remove(id)
}

// Clear removes every proxy, e.g. after the connection to the hub was lost.
func (r *Reconciler) Clear() {
	reg := r.host.Registry()
	for _, id := range reg.ProxyIDs() {
		reg.Remove(id)
	}
}

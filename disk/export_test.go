package disk

import "context"

// TestOnlySweepOnce exposes the sweeper's single-pass logic to the
// external test package, so tests can assert its effects without waiting
// on a real ticker.
func (d *DiskItem) TestOnlySweepOnce(ctx context.Context, serverID string) {
	d.sweepOnce(ctx, serverID)
}

// Package affinity decides which worker core owns each flow and moves
// ownership of flow groups between cores while traffic is running.
//
// The pieces are a Context holding the assignment plan (group -> core) and
// the migration generation, an OwnerTable mapping flow identities to their
// owning core, a Classifier per worker splitting inbound batches into per-core
// sub-batches and a MigrationController implementing the two-phase
// pre-migrate/post-migrate handover.
//
// A typical setup looks like this:
//
//	ctx := affinity.NewContext(cores)
//	if err := ctx.InitAssignment(plan); err != nil {
//		...
//	}
//	table, _ := affinity.NewOwnerTable(ctx, params, sink)
//	ctrl, _ := affinity.NewMigrationController(ctx, table, sink)
//	classifier, _ := affinity.NewClassifier(table, params, out, sink)
//
// Each worker owns its classifier. The table, the plan and the controller are
// shared by all workers.
package affinity

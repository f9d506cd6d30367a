// Package purge deletes a snapshot of model definitions from a remote store
// in an order the store accepts.
//
// The service refuses to delete a model while another model extends it or
// uses it as a component schema. The Purger therefore works in passes:
//
//  1. Scan every remaining model and collect the ids it references.
//  2. Everything nobody references is a leaf and can be deleted.
//  3. Delete the leaves concurrently and wait for all of them.
//  4. Drop the deleted models from the working set and start over.
//
// A pass that deletes nothing while models remain ends the run as Stuck.
// The report then lists each stuck model with the remaining models that
// still reference it, and Explain tells cycles apart from models that are
// only blocked by them.
//
// State machine:
//
//	Running(all) -> Running(remaining') -> ... -> Done
//	                                          \-> Stuck(remaining)
//
// A delete that fails is not fatal. The model stays in the working set and
// is retried in the next pass, because the failure may be transient.
package purge

// Package preflight provides readiness checks for the directories and
// processor stages framepipe depends on.
//
// These checks run in two contexts:
//   - The pipeline runner calls CheckDirectoryAccess on the target before
//     any frame is dispatched, so an unwritable target fails fast.
//   - The CLI "framepipe status" command uses RunAll to display readiness of
//     the state directory, log directory, and configured processor chain.
package preflight

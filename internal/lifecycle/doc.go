// Package lifecycle reconciles the cache with its retention policy.
//
// A build calls Begin before resolving artifacts, which marks every entry
// stale unless it already carries an earlier mark, and Apply once the build
// completes. Entries the build used lose their mark through the coordinator.
// Apply then removes what the policy considers obsolete:
//
//	delayed    stale for longer than the grace period (24h by default)
//	immediate  every entry the build did not use
//	wipe       everything, used or not
//	manual     nothing; the obsolete set is only reported
//
// Optimize is the explicit purge behind "sleeve cache optimize".
package lifecycle

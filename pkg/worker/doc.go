// Package worker runs the poll → claim → execute → heartbeat → complete
// loop described in spec §4.6: a cooperative pool of job tasks sharing
// one worker identity, plus a cron-scheduled reaper for stale claims.
package worker

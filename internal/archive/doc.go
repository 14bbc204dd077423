// Package archive defines the shared types and contracts of the website archive pipeline.
//
// A run walks the tracked websites held by a Store, checks each URL through a Checker, writes
// changed liveness flags back to the Store and, for live sites, hands the resolved URL to an
// external archiving program through a Runner. The program's output is then moved under
// <output root>/<website id>/<run date>. Each website's work is a job whose result is captured
// in a JobResult; a Report aggregates the results of one run.
package archive

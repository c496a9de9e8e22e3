// Package dispatcher runs the staff workers. Every staff unit is a goroutine
// that acquires a unit from its pool, takes the next case from its queue,
// applies the service logic of its role and routes the case to the next
// queue or to its terminal outcome.
package dispatcher

// Package queue provides the stage queues cases wait in between services:
// first-in first-out for routine stages and severity-ordered priority queues
// for emergency, surge and surgery work.
package queue

// Package pool implements bounded staff pools. Units are acquired with a
// timeout and released through a Hold handle; capacity can be lent to another
// activity through a Loan and is restored when the loan is returned.
package pool

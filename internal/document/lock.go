package document

import "fmt"

// Activity captures whether any financial records reference a document.
// Any one of them locks the document regardless of its status: a Draft
// can become locked mid-session the moment a payment lands against it.
type Activity struct {
	HasPayments           bool
	HasCreditApplications bool
	HasPostedCreditNotes  bool
}

// Any reports whether any financial record references the document.
func (a Activity) Any() bool {
	return a.HasPayments || a.HasCreditApplications || a.HasPostedCreditNotes
}

// IsLocked evaluates the lock invariant: a document is locked when its
// status is Sent or beyond, or when any payment, credit application, or
// posted credit note references it — whichever comes first. The returned
// reason names the triggering condition for UI rendering.
//
// The result is never cached; every mutating call re-evaluates it under
// a row lock on the document.
func IsLocked(status Status, activity Activity) (bool, string) {
	if status.AtLeast(StatusSent) {
		return true, fmt.Sprintf("document status is %s; monetary fields and line items are frozen", status)
	}
	switch {
	case activity.HasPayments:
		return true, "a payment references this document"
	case activity.HasCreditApplications:
		return true, "a credit application references this document"
	case activity.HasPostedCreditNotes:
		return true, "a posted credit note references this document"
	}
	return false, ""
}

package models

import "errors"

// IssueStatus is the single state of an Issue. The legacy boolean flags
// (issue_requested, issue_approved, ...) are derived from it and can never
// disagree with each other.
type IssueStatus string

const (
	IssueStatusRequested       IssueStatus = "REQUESTED"
	IssueStatusIssueRejected   IssueStatus = "ISSUE_REJECTED"
	IssueStatusIssued          IssueStatus = "ISSUED"
	IssueStatusReturnRequested IssueStatus = "RETURN_REQUESTED"
	IssueStatusReturnRejected  IssueStatus = "RETURN_REJECTED"
	IssueStatusReturned        IssueStatus = "RETURNED"
)

// ErrInvalidTransition is wrapped by every TransitionError.
var ErrInvalidTransition = errors.New("invalid issue transition")

// TransitionError describes why a transition is not allowed from the current state.
type TransitionError struct {
	From   IssueStatus
	Reason string
}

func (e *TransitionError) Error() string { return e.Reason }

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

func refuse(from IssueStatus, reason string) (IssueStatus, error) {
	return from, &TransitionError{From: from, Reason: reason}
}

// ActiveIssueStatuses block a new request for the same (user, book) pair.
var ActiveIssueStatuses = []IssueStatus{
	IssueStatusRequested,
	IssueStatusIssued,
	IssueStatusReturnRequested,
	IssueStatusReturnRejected,
}

// OnLoanStatuses are the states in which a copy is physically with the borrower.
var OnLoanStatuses = []IssueStatus{
	IssueStatusIssued,
	IssueStatusReturnRequested,
	IssueStatusReturnRejected,
}

// ClosedStatuses are the states an admin has acted on at least once.
var ClosedStatuses = []IssueStatus{
	IssueStatusIssueRejected,
	IssueStatusIssued,
	IssueStatusReturnRequested,
	IssueStatusReturnRejected,
	IssueStatusReturned,
}

func (s IssueStatus) String() string {
	return string(s)
}

// Valid reports whether s is a known state.
func (s IssueStatus) Valid() bool {
	switch s {
	case IssueStatusRequested, IssueStatusIssueRejected, IssueStatusIssued,
		IssueStatusReturnRequested, IssueStatusReturnRejected, IssueStatusReturned:
		return true
	}
	return false
}

// IsActive reports whether the issue still occupies the (user, book) slot.
func (s IssueStatus) IsActive() bool {
	return contains(ActiveIssueStatuses, s)
}

// IsOnLoan reports whether a copy has been handed out and not yet taken back.
func (s IssueStatus) IsOnLoan() bool {
	return contains(OnLoanStatuses, s)
}

// ─── Transitions ──────────────────────────────────────────────────────────────

// ApproveIssue moves a pending request to ISSUED.
func (s IssueStatus) ApproveIssue() (IssueStatus, error) {
	switch {
	case s == IssueStatusRequested:
		return IssueStatusIssued, nil
	case s == IssueStatusIssueRejected:
		return refuse(s, "Issue already rejected")
	case s.IssueApproved():
		return refuse(s, "Issue already approved")
	}
	return refuse(s, "No pending issue request")
}

// RejectIssue moves a pending request to ISSUE_REJECTED.
func (s IssueStatus) RejectIssue() (IssueStatus, error) {
	switch {
	case s == IssueStatusRequested:
		return IssueStatusIssueRejected, nil
	case s == IssueStatusIssueRejected:
		return refuse(s, "Issue already rejected")
	case s.IssueApproved():
		return refuse(s, "Cannot reject an approved issue")
	}
	return refuse(s, "No pending issue request")
}

// RequestReturn is legal from ISSUED and, as a resubmission, from RETURN_REJECTED.
func (s IssueStatus) RequestReturn() (IssueStatus, error) {
	switch s {
	case IssueStatusIssued, IssueStatusReturnRejected:
		return IssueStatusReturnRequested, nil
	case IssueStatusReturnRequested:
		return refuse(s, "Return already requested")
	case IssueStatusReturned:
		return refuse(s, "Return already approved")
	}
	return refuse(s, "Book is not issued")
}

// ApproveReturn closes a pending return.
func (s IssueStatus) ApproveReturn() (IssueStatus, error) {
	if err := s.pendingReturn(); err != nil {
		return s, err
	}
	return IssueStatusReturned, nil
}

// RejectReturn sends a pending return back to the borrower.
func (s IssueStatus) RejectReturn() (IssueStatus, error) {
	if err := s.pendingReturn(); err != nil {
		return s, err
	}
	return IssueStatusReturnRejected, nil
}

func (s IssueStatus) pendingReturn() error {
	var err error
	switch s {
	case IssueStatusReturnRequested:
		return nil
	case IssueStatusReturned:
		_, err = refuse(s, "Return already approved")
	case IssueStatusReturnRejected:
		_, err = refuse(s, "Return already rejected")
	default:
		_, err = refuse(s, "No pending return request")
	}
	return err
}

// ─── Derived flags ────────────────────────────────────────────────────────────

func (s IssueStatus) IssueRequested() bool { return s == IssueStatusRequested }

func (s IssueStatus) IssueApproved() bool {
	return s == IssueStatusReturned || s.IsOnLoan()
}

func (s IssueStatus) IssueRejected() bool { return s == IssueStatusIssueRejected }

func (s IssueStatus) ReturnRequested() bool { return s == IssueStatusReturnRequested }

func (s IssueStatus) ReturnApproved() bool { return s == IssueStatusReturned }

func (s IssueStatus) ReturnRejected() bool { return s == IssueStatusReturnRejected }

func contains(set []IssueStatus, s IssueStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

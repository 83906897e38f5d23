package editlock

// Guard intercepts leaving the page while edits are live. It is armed when the
// session starts editing and disarmed on every path out of editing.
type Guard interface {
	Arm()
	Disarm()
}

// Notifier receives session state changes for display.
type Notifier interface {
	EditStatusChanged(status Status)
	EditLost(tripID int64, message string)
}

// UserIDSource yields the authenticated user's id.
type UserIDSource interface {
	UserID() (int64, error)
}

type nopGuard struct{}

func (nopGuard) Arm()    {}
func (nopGuard) Disarm() {}

type nopNotifier struct{}

func (nopNotifier) EditStatusChanged(Status) {}
func (nopNotifier) EditLost(int64, string)   {}

// LeavePromptText is shown when the user tries to leave while editing.
const LeavePromptText = "편집 중인 내용이 있습니다. 페이지를 떠나면 편집 권한이 해제됩니다. 계속하시겠습니까?"

// LostNoticeText is shown when the server reports the lock as expired.
const LostNoticeText = "편집 권한이 만료되었습니다. 다시 편집을 시작해주세요."

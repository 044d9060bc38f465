package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// 预订流程状态常量
const (
	BookingIdle       = "idle"
	BookingLoading    = "loading"
	BookingReady      = "ready"
	BookingNoSpots    = "no_spots"
	BookingSubmitting = "submitting"
	BookingSuccess    = "success"
	BookingFailed     = "failed"
	BookingErrored    = "errored" // 终态：缺少 lot id 等入口错误
)

// 释放流程状态常量
const (
	ReleaseIdle           = "idle"
	ReleaseLoadingBooking = "loading_booking"
	ReleaseLoadingLot     = "loading_lot"
	ReleaseReady          = "ready"
	ReleaseReleasing      = "releasing"
	ReleaseRedirecting    = "redirecting"
	ReleaseDone           = "done"
	ReleaseFailed         = "failed"
)

// 导出流程状态常量
const (
	ExportIdle    = "idle"
	ExportPending = "pending"
	ExportReady   = "ready"
	ExportFailed  = "failed"
)

// 事件常量
const (
	EventLoad     = "load"
	EventAssign   = "assign"
	EventExhaust  = "exhaust"
	EventSubmit   = "submit"
	EventSucceed  = "succeed"
	EventFail     = "fail"
	EventAbort    = "abort"
	EventLoaded   = "loaded"
	EventPriced   = "priced"
	EventRelease  = "release"
	EventRedirect = "redirect"
	EventFinish   = "finish"
	EventStart    = "start"
	EventComplete = "complete"
)

// ChangeFunc 状态迁移回调
type ChangeFunc func(flow, from, to, message string)

// Flow 流程状态机
type Flow struct {
	mu       sync.RWMutex
	name     string
	fsm      *fsm.FSM
	since    time.Time
	message  string
	onChange ChangeFunc
}

func newFlow(name, initial string, events fsm.Events, onChange ChangeFunc) *Flow {
	f := &Flow{
		name:     name,
		since:    time.Now(),
		onChange: onChange,
	}

	f.fsm = fsm.NewFSM(
		initial,
		events,
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if f.onChange != nil && e.Src != e.Dst {
					f.onChange(f.name, e.Src, e.Dst, f.message)
				}
			},
		},
	)

	return f
}

// NewBookingFlow 创建预订流程状态机
// idle -> loading -> {ready | no_spots} -> submitting -> {success | failed}
// errored 为入口错误的终态；failed 允许用户重试提交。
func NewBookingFlow(onChange ChangeFunc) *Flow {
	return newFlow("booking", BookingIdle, fsm.Events{
		{Name: EventLoad, Src: []string{BookingIdle}, Dst: BookingLoading},
		{Name: EventAssign, Src: []string{BookingLoading}, Dst: BookingReady},
		{Name: EventExhaust, Src: []string{BookingLoading}, Dst: BookingNoSpots},
		{Name: EventSubmit, Src: []string{BookingReady, BookingFailed}, Dst: BookingSubmitting},
		{Name: EventSucceed, Src: []string{BookingSubmitting}, Dst: BookingSuccess},
		{Name: EventFail, Src: []string{BookingLoading, BookingSubmitting}, Dst: BookingFailed},
		{Name: EventAbort, Src: []string{BookingIdle, BookingLoading}, Dst: BookingErrored},
	}, onChange)
}

// NewReleaseFlow 创建释放流程状态机
// idle -> loading_booking -> loading_lot -> ready -> releasing
//   -> {redirecting -> done | failed}
// redirecting 一旦进入便不可取消；failed 允许重试。
func NewReleaseFlow(onChange ChangeFunc) *Flow {
	return newFlow("release", ReleaseIdle, fsm.Events{
		{Name: EventLoad, Src: []string{ReleaseIdle}, Dst: ReleaseLoadingBooking},
		{Name: EventLoaded, Src: []string{ReleaseLoadingBooking}, Dst: ReleaseLoadingLot},
		{Name: EventPriced, Src: []string{ReleaseLoadingLot}, Dst: ReleaseReady},
		{Name: EventRelease, Src: []string{ReleaseReady, ReleaseFailed}, Dst: ReleaseReleasing},
		{Name: EventRedirect, Src: []string{ReleaseReleasing}, Dst: ReleaseRedirecting},
		{Name: EventFinish, Src: []string{ReleaseRedirecting}, Dst: ReleaseDone},
		{Name: EventFail, Src: []string{ReleaseLoadingBooking, ReleaseLoadingLot, ReleaseReleasing}, Dst: ReleaseFailed},
	}, onChange)
}

// NewExportFlow 创建导出流程状态机
// idle -> pending -> {ready | failed}；终态可重新 start
func NewExportFlow(onChange ChangeFunc) *Flow {
	return newFlow("export", ExportIdle, fsm.Events{
		{Name: EventStart, Src: []string{ExportIdle, ExportReady, ExportFailed}, Dst: ExportPending},
		{Name: EventComplete, Src: []string{ExportPending}, Dst: ExportReady},
		{Name: EventFail, Src: []string{ExportPending}, Dst: ExportFailed},
	}, onChange)
}

// Name 流程名
func (f *Flow) Name() string {
	return f.name
}

// Current 获取当前状态
func (f *Flow) Current() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.fsm.Current()
}

// Message 最近一次迁移附带的消息
func (f *Flow) Message() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.message
}

// Since 进入当前状态的时间
func (f *Flow) Since() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.since
}

// Trigger 触发事件，message 为展示给用户的消息（可为空）
func (f *Flow) Trigger(event, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.message = message
	if err := f.fsm.Event(context.Background(), event); err != nil {
		return fmt.Errorf("trigger event %s: %w", event, err)
	}
	f.since = time.Now()
	return nil
}

// Can 检查事件在当前状态下是否可触发
func (f *Flow) Can(event string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.fsm.Can(event)
}

// Is 检查当前状态
func (f *Flow) Is(s string) bool {
	return f.Current() == s
}

package runtimehost

// MaskShutdown enters a re-entrant critical section immune to tenant-death
// injection. Pattern:
//
//	t.MaskShutdown()
//	defer t.UnmaskShutdown()
func (t *Thread) MaskShutdown() {
	t.mu.Lock()
	t.maskDepth++
	t.mu.Unlock()
}

// UnmaskShutdown leaves one level of the shutdown mask. When the depth
// reaches zero and a death was deferred while masked, the pending death is
// delivered immediately.
func (t *Thread) UnmaskShutdown() {
	t.mu.Lock()
	if t.maskDepth > 0 {
		t.maskDepth--
	}
	deliver := t.maskDepth == 0 && t.deathPending
	if deliver {
		t.deathPending = false
	}
	t.mu.Unlock()

	if deliver {
		t.deathMarked.Store(true)
		t.signalWake()
	}
}

// MaskDepth returns the current re-entrant mask depth (test/diagnostic
// use).
func (t *Thread) MaskDepth() int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maskDepth
}

// Masked reports whether the thread currently has an active shutdown mask.
func (t *Thread) Masked() bool {
	return t.MaskDepth() > 0
}

// markForDeath marks the tenant-death condition on the thread, deferring
// delivery if the thread is currently masked.
func (t *Thread) markForDeath() {
	t.mu.Lock()
	if t.maskDepth > 0 {
		t.deathPending = true
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	t.deathMarked.Store(true)
}

// HasTenantDeath reports whether this thread has been marked for death and
// that mark is currently observable (i.e. not deferred behind a mask).
func (t *Thread) HasTenantDeath() bool {
	return t.deathMarked.Load()
}

func (t *Thread) signalWake() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// WakeChan exposes the wake signal so cooperative code can select on it
// alongside its own blocking operation, standing in for the VM's
// safepoint/async-exception delivery.
func (t *Thread) WakeChan() <-chan struct{} {
	return t.wake
}

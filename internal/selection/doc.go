// Package selection implements pointer-driven text selection over a page's
// spatial text index.
//
// The Engine is a two-state machine (Idle, Selecting). A press either
// starts a drag or, when it completes a double click, selects the word
// under the pointer. Drag selection is word-snapped: any word whose box
// touches the drag rectangle is selected whole.
//
//	e := selection.New(selection.WithListener(selection.ListenerFunc(onChange)))
//	e.SetPage(pageText)
//	e.PointerDown(p, time.Now())
//	e.PointerMove(q)
//	e.PointerUp(q)
//	text := e.Text()
//
// An Engine is owned by the UI goroutine and is not safe for concurrent use.
package selection

package browser

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-rod/rod"

	"github.com/hallwayapps/browsergate/pkg/models"
)

// readinessSelectors is the ordered set of DOM queries used to detect that
// asynchronous SPA content has finished mounting. The first one to resolve
// wins; none resolving is tolerated.
var readinessSelectors = []string{
	"main",
	"[role='main']",
	"#root > *",
	"#app > *",
	"table",
	"button",
	"a[href]",
}

// readinessWait bounds how long a compact read waits for content before its
// single retry.
const readinessWait = 5 * time.Second

// compactReader abstracts one page for the empty-extraction retry protocol.
type compactReader interface {
	readCompact(ctx context.Context) (*models.CompactState, error)
	awaitReady(ctx context.Context) error
}

// compactWithRetry performs the compact read with the empty-extraction retry
// protocol: if the first read sees no interactive elements and no tables,
// wait for a readiness selector and re-read exactly once. A second empty
// result is returned as-is so callers never loop.
func compactWithRetry(ctx context.Context, r compactReader) (*models.CompactState, error) {
	state, err := r.readCompact(ctx)
	if err != nil {
		return nil, err
	}
	if !state.Empty() {
		return state, nil
	}

	// The page may still be mounting; a readiness failure is tolerated, the
	// retry read happens either way.
	_ = r.awaitReady(ctx)

	return r.readCompact(ctx)
}

// rodReader reads page state through a live Rod page.
type rodReader struct {
	page    *rod.Page
	timeout time.Duration
}

func (r *rodReader) eval(ctx context.Context, js string, out any) error {
	res, err := r.page.Context(ctx).Timeout(r.timeout).Evaluate(&rod.EvalOptions{
		JS:           js,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return Classify(err)
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (r *rodReader) readCompact(ctx context.Context) (*models.CompactState, error) {
	var state models.CompactState
	if err := r.eval(ctx, compactJS, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *rodReader) awaitReady(ctx context.Context) error {
	race := r.page.Context(ctx).Timeout(readinessWait).Race()
	for _, sel := range readinessSelectors {
		race = race.Element(sel)
	}
	_, err := race.Do()
	return err
}

func (r *rodReader) readLite(ctx context.Context) (*models.LiteState, error) {
	var state models.LiteState
	if err := r.eval(ctx, liteJS, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *rodReader) readFull(ctx context.Context, includeIframes bool) (*models.FullState, error) {
	var state models.FullState
	if err := r.eval(ctx, fullJS, &state); err != nil {
		return nil, err
	}
	if includeIframes {
		// Same-origin frames only; cross-origin frames are skipped rather
		// than failing the whole read.
		var frames []models.FrameState
		if err := r.eval(ctx, framesJS, &frames); err == nil {
			state.Frames = frames
		}
	}
	return &state, nil
}

const compactJS = `
() => {
	const cssPath = (el) => {
		if (el.id) return '#' + CSS.escape(el.id);
		const parts = [];
		let node = el;
		while (node && node.nodeType === 1 && parts.length < 4) {
			let part = node.tagName.toLowerCase();
			const parent = node.parentElement;
			if (parent) {
				const siblings = Array.from(parent.children).filter(c => c.tagName === node.tagName);
				if (siblings.length > 1) part += ':nth-of-type(' + (siblings.indexOf(node) + 1) + ')';
			}
			parts.unshift(part);
			if (node.id) { parts[0] = '#' + CSS.escape(node.id); break; }
			node = parent;
		}
		return parts.join(' > ');
	};
	const text = (el) => (el.innerText || el.value || el.getAttribute('aria-label') || '').trim().slice(0, 120);

	const buttons = Array.from(document.querySelectorAll(
		"button, [role='button'], input[type='submit'], input[type='button']"
	)).map(el => ({ selector: cssPath(el), text: text(el), kind: 'button' }));

	const links = Array.from(document.querySelectorAll('a[href]')).map(el => ({
		selector: cssPath(el), text: text(el), kind: el.host || 'link'
	}));

	const inputs = Array.from(document.querySelectorAll(
		"input:not([type='hidden']):not([type='submit']):not([type='button']), textarea, select"
	)).map(el => ({
		selector: cssPath(el),
		text: el.placeholder || el.name || '',
		kind: el.type || el.tagName.toLowerCase()
	}));

	const tables = Array.from(document.querySelectorAll('table')).slice(0, 5).map(table => ({
		caption: table.caption ? table.caption.innerText.trim() : '',
		headers: Array.from(table.querySelectorAll('th')).map(th => th.innerText.trim()),
		rows: Array.from(table.querySelectorAll('tr')).slice(0, 50).map(tr =>
			Array.from(tr.querySelectorAll('td')).map(td => td.innerText.trim().slice(0, 200))
		).filter(row => row.length > 0)
	}));

	return {
		url: location.href,
		title: document.title,
		buttons: buttons.slice(0, 100),
		links: links.slice(0, 100),
		inputs: inputs.slice(0, 100),
		tables: tables
	};
}`

const liteJS = `
() => ({
	url: location.href,
	title: document.title,
	elementCount: document.querySelectorAll('*').length
})`

const fullJS = `
() => {
	const keepAttrs = ['id', 'name', 'type', 'href', 'role', 'placeholder', 'value', 'alt', 'aria-label'];
	const walk = (el, depth) => {
		if (depth > 12) return null;
		const node = { tag: el.tagName.toLowerCase() };
		const attrs = {};
		for (const name of keepAttrs) {
			const v = el.getAttribute && el.getAttribute(name);
			if (v) attrs[name] = String(v).slice(0, 200);
		}
		if (Object.keys(attrs).length) node.attrs = attrs;

		let ownText = '';
		for (const child of el.childNodes) {
			if (child.nodeType === 3) ownText += child.textContent;
		}
		ownText = ownText.trim().slice(0, 200);
		if (ownText) node.text = ownText;

		const children = [];
		for (const child of el.children) {
			if (['SCRIPT', 'STYLE', 'NOSCRIPT', 'LINK', 'META'].includes(child.tagName)) continue;
			const walked = walk(child, depth + 1);
			if (walked) children.push(walked);
			if (children.length >= 60) break;
		}
		if (children.length) node.children = children;
		return node;
	};
	const root = document.body ? walk(document.body, 0) : null;
	return {
		url: location.href,
		title: document.title,
		tree: root ? [root] : []
	};
}`

const framesJS = `
() => {
	const out = [];
	for (const frame of document.querySelectorAll('iframe')) {
		try {
			const doc = frame.contentDocument;
			if (!doc || !doc.body) continue;
			out.push({
				url: frame.src || 'about:blank',
				tree: [{ tag: 'body', text: (doc.body.innerText || '').trim().slice(0, 2000) }]
			});
		} catch (e) { /* cross-origin */ }
	}
	return out;
}`

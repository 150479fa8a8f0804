package dom

// 页面内执行的脚本。每个脚本都是函数表达式,返回 JSON.stringify 的结果。

const scrollMarker = "data-groupagent-scroll"

var rowSelectors = []string{
	`[role="listitem"]`,
	`[role="row"]`,
	`[data-testid="cell-frame-container"]`,
}

const jsSessionState = `() => {
	if (document.querySelector('#pane-side') || document.querySelector('[data-testid="chat-list"]')) {
		return JSON.stringify("READY");
	}
	if (document.querySelector('canvas[aria-label]') || document.querySelector('[data-ref]') || document.querySelector('[data-testid="qrcode"]')) {
		return JSON.stringify("LOGIN_REQUIRED");
	}
	return JSON.stringify("CONNECTING");
}`

const jsOpenTitle = `() => {
	const header = document.querySelector('#main header');
	if (!header) return JSON.stringify("");
	const titled = header.querySelector('span[title]');
	if (titled) return JSON.stringify(titled.getAttribute('title') || titled.textContent || "");
	const span = header.querySelector('span[dir="auto"]');
	return JSON.stringify(span ? span.textContent : "");
}`

const jsOpenByReference = `async (id, archived) => {
	try {
		const wpp = window.WPP;
		if (wpp && wpp.chat) {
			if (archived && wpp.chat.unarchive) {
				try { await wpp.chat.unarchive(id); } catch (e) {}
			}
			if (wpp.chat.openChatBottom) {
				await wpp.chat.openChatBottom(id);
				return JSON.stringify(true);
			}
		}
		const store = window.Store;
		if (store && store.Chat && store.Cmd) {
			const chat = store.Chat.get(id);
			if (chat) {
				await store.Cmd.openChatBottom(chat);
				return JSON.stringify(true);
			}
		}
	} catch (e) {}
	return JSON.stringify(false);
}`

const jsExists = `(selector) => JSON.stringify(!!document.querySelector(selector))`

const jsClickFirst = `(selector) => {
	const el = document.querySelector(selector);
	if (!el) return JSON.stringify(false);
	el.click();
	return JSON.stringify(true);
}`

const jsClickByText = `(selector, pattern) => {
	const re = new RegExp(pattern, 'i');
	for (const el of document.querySelectorAll(selector)) {
		if (re.test(el.textContent || '') || re.test(el.getAttribute('aria-label') || '')) {
			el.click();
			return JSON.stringify(true);
		}
	}
	return JSON.stringify(false);
}`

const jsListTitles = `(root) => {
	const pane = document.querySelector(root);
	if (!pane) return JSON.stringify(null);
	const out = [];
	pane.querySelectorAll('span[title]').forEach(s => {
		const t = s.getAttribute('title');
		if (t) out.push(t);
	});
	return JSON.stringify(out);
}`

const jsClickTitle = `(root, title) => {
	const pane = document.querySelector(root) || document;
	for (const s of pane.querySelectorAll('span[title]')) {
		if (s.getAttribute('title') !== title) continue;
		const row = s.closest('[role="listitem"], [role="row"], div[tabindex]') || s;
		for (const type of ['mousedown', 'mouseup', 'click']) {
			row.dispatchEvent(new MouseEvent(type, {bubbles: true, cancelable: true, view: window}));
		}
		return JSON.stringify(true);
	}
	return JSON.stringify(false);
}`

const jsScrollBy = `(root, px) => {
	const pane = document.querySelector(root);
	if (!pane) return JSON.stringify(false);
	const before = pane.scrollTop;
	pane.scrollTop = before + px;
	return JSON.stringify(pane.scrollTop !== before);
}`

const jsScrollReset = `(root) => {
	const pane = document.querySelector(root);
	if (pane) pane.scrollTop = 0;
	return JSON.stringify(!!pane);
}`

const jsFocus = `(selector) => {
	const el = document.querySelector(selector);
	if (!el) return JSON.stringify(false);
	el.focus();
	el.click();
	return JSON.stringify(document.activeElement === el || el.contains(document.activeElement));
}`

const jsClearSearch = `(selector) => {
	const cancel = document.querySelector('[data-icon="x-alt"], button[aria-label*="Cancel"], button[aria-label*="Cancelar"]');
	if (cancel) {
		cancel.click();
		return JSON.stringify(true);
	}
	const el = document.querySelector(selector);
	if (!el) return JSON.stringify(false);
	el.focus();
	document.execCommand('selectAll', false);
	document.execCommand('delete', false);
	return JSON.stringify(true);
}`

const jsDialogOpen = `() => JSON.stringify(!!document.querySelector('[role="dialog"]'))`

const jsMarkScrollRegion = `(marker) => {
	document.querySelectorAll('[' + marker + ']').forEach(e => e.removeAttribute(marker));
	for (const dialog of document.querySelectorAll('[role="dialog"]')) {
		for (const div of dialog.querySelectorAll('div')) {
			const style = window.getComputedStyle(div);
			const scrolls = style.overflowY === 'auto' || style.overflowY === 'scroll';
			if (scrolls && div.scrollHeight > div.clientHeight + 100 && div.querySelector('[role="listitem"], [role="row"]')) {
				div.setAttribute(marker, '1');
				return JSON.stringify(true);
			}
		}
	}
	return JSON.stringify(false);
}`

const jsMetrics = `(marker) => {
	const el = document.querySelector('[' + marker + ']');
	if (!el || !el.isConnected) return JSON.stringify(null);
	return JSON.stringify({top: el.scrollTop, clientHeight: el.clientHeight, scrollHeight: el.scrollHeight});
}`

const jsScrollTo = `(marker, top) => {
	const el = document.querySelector('[' + marker + ']');
	if (!el || !el.isConnected) return JSON.stringify(false);
	el.scrollTop = top;
	return JSON.stringify(true);
}`

// jsReadRows 读取 root 下的成员行;visibleOnly 时只返回与 root 可视区相交的行。
// root 不存在时返回 null。
const jsReadRows = `(rootSelector, rowSelectors, visibleOnly) => {
	const root = document.querySelector(rootSelector);
	if (!root) return JSON.stringify(null);
	let rows = [];
	for (const sel of rowSelectors) {
		const found = Array.from(root.querySelectorAll(sel));
		if (found.length > 0) {
			rows = found;
			break;
		}
	}
	if (rows.length === 0) {
		const seen = new Set();
		root.querySelectorAll('span[title], span[dir="auto"]').forEach(s => {
			const parent = s.parentElement && s.parentElement.parentElement;
			if (parent && parent !== root && !seen.has(parent)) {
				seen.add(parent);
				rows.push(parent);
			}
		});
	}
	const box = root.getBoundingClientRect();
	const out = [];
	for (const row of rows) {
		if (visibleOnly) {
			const r = row.getBoundingClientRect();
			if (r.bottom < box.top || r.top > box.bottom) continue;
		}
		const texts = [];
		row.querySelectorAll('span[title], span[dir="auto"]').forEach(s => {
			const t = (s.getAttribute('title') || s.textContent || '').trim();
			if (t) texts.push(t);
		});
		out.push({texts: texts, full: row.textContent || ''});
	}
	return JSON.stringify(out);
}`

const jsCloseDialogs = `(marker) => {
	let clicked = 0;
	document.querySelectorAll('[role="dialog"] [data-icon="x"], [role="dialog"] [aria-label*="Fechar"], [role="dialog"] [aria-label*="Close"]').forEach(btn => {
		btn.click();
		clicked++;
	});
	document.querySelectorAll('[' + marker + ']').forEach(e => e.removeAttribute(marker));
	return JSON.stringify(clicked);
}`

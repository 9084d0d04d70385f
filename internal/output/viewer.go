package output

import "net/http"

// GetViewerHandler returns an HTTP handler showing the preview stream with
// a hover control panel. The panel sends control messages over the
// /api/control/ws WebSocket.
func (m *MJPEGOutput) GetViewerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(viewerHTML))
	}
}

const viewerHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Illuminate</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            background: #000;
            overflow: hidden;
            display: flex;
            justify-content: center;
            align-items: center;
            min-height: 100vh;
            font-family: system-ui, -apple-system, sans-serif;
        }
        img {
            width: 100vw;
            height: 100vh;
            object-fit: contain;
            display: block;
            background: #000;
        }
        .panel-trigger {
            position: fixed;
            top: 0;
            right: 0;
            width: 60px;
            height: 100vh;
            z-index: 900;
        }
        .panel {
            position: fixed;
            top: 16px;
            right: 16px;
            width: 260px;
            padding: 12px 14px;
            background: rgba(30, 30, 30, 0.92);
            color: #ccc;
            border-radius: 10px;
            font-size: 13px;
            opacity: 0;
            transform: translateX(10px);
            transition: opacity 0.2s ease, transform 0.2s ease;
            pointer-events: none;
            z-index: 1000;
        }
        .panel-trigger:hover ~ .panel,
        .panel:hover {
            opacity: 1;
            transform: translateX(0);
            pointer-events: auto;
        }
        .panel label { display: block; margin-top: 8px; }
        .panel input[type=range] { width: 100%; }
        .panel button {
            margin-top: 10px;
            padding: 6px 12px;
            background: rgba(70, 130, 180, 0.9);
            color: #fff;
            border: none;
            border-radius: 14px;
            cursor: pointer;
        }
        .panel a { color: #569cd6; display: block; margin-top: 10px; }
    </style>
</head>
<body>
    <img src="/stream" alt="Illuminate live stream">
    <div class="panel-trigger"></div>
    <div class="panel">
        <label>Zoom <input type="range" min="0" max="1" step="0.01" data-addr="/1/zoom"></label>
        <label>Skew <input type="range" min="-1" max="1" step="0.01" value="0" data-addr="/1/skew"></label>
        <label><input type="checkbox" data-addr="/1/blur_switch"> Trails</label>
        <label>Trail amount <input type="range" min="0" max="1" step="0.01" value="0.9" data-addr="/1/blur_amt"></label>
        <label>Frame skip <input type="range" min="0" max="30" step="1" value="0" data-addr="/1/frame_skip" data-int></label>
        <label><input type="checkbox" data-addr="/1/col_rot_switch"> Hue rotation</label>
        <label>Hue speed <input type="range" min="0" max="1" step="0.01" value="0" data-addr="/1/col_rot_speed"></label>
        <label>Hue centre <input type="range" min="0" max="1" step="0.01" value="0.5" data-addr="/1/col_rot_center"></label>
        <label>Hue width <input type="range" min="0" max="1" step="0.01" value="1" data-addr="/1/col_rot_width"></label>
        <label>Trail mix <input type="range" min="0" max="1" step="0.01" value="1" data-addr="/1/new_frame_mix"></label>
        <button data-addr="/1/save">Save</button>
        <button data-addr="/1/load">Load</button>
        <a href="/stats">Stream stats</a>
    </div>
    <script>
        let ws;
        function connect() {
            const proto = location.protocol === 'https:' ? 'wss' : 'ws';
            ws = new WebSocket(proto + '://' + location.host + '/api/control/ws');
            ws.onclose = () => setTimeout(connect, 1000);
        }
        function send(address, args) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({ address, args }));
            }
        }
        connect();

        document.querySelectorAll('input[type=range]').forEach(el => {
            el.addEventListener('input', () => {
                const v = el.hasAttribute('data-int') ? parseInt(el.value, 10) : parseFloat(el.value);
                send(el.dataset.addr, [v]);
            });
        });
        document.querySelectorAll('input[type=checkbox]').forEach(el => {
            el.addEventListener('change', () => send(el.dataset.addr, [el.checked ? 1 : 0]));
        });
        document.querySelectorAll('button[data-addr]').forEach(el => {
            el.addEventListener('click', () => send(el.dataset.addr, []));
        });
    </script>
</body>
</html>`

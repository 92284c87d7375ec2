package server

import (
	"net/http"
	"strings"
)

// handleIndex serves the control page. The page only changes with a release,
// so its ETag is the version tag.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	etag := `"` + s.cfg.Version + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")

	if match := r.Header.Get("If-None-Match"); match != "" {
		for _, candidate := range strings.Split(match, ",") {
			candidate = strings.TrimSpace(candidate)
			if candidate == etag || candidate == "*" {
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexHTML))
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>ClipCapture</title>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/@picocss/pico@2/css/pico.min.css">
</head>
<body>
<main class="container">
    <h1>ClipCapture</h1>
    <img id="preview" src="/preview.mjpg" alt="camera preview" style="max-width:100%">
    <p id="status">STANDBY</p>
    <div role="group">
        <button id="record" onclick="api('/api/record/start')">Record</button>
        <button onclick="api('/api/record/stop')">Stop</button>
        <button onclick="api('/api/record/toggle')">Mic / Music</button>
        <button class="secondary" onclick="api('/api/camera/switch')">Switch camera</button>
        <button class="secondary" onclick="monitor()">Listen</button>
    </div>

    <h2>Music</h2>
    <select id="tracks" onchange="selectTrack(this.value)"></select>
    <input type="file" id="upload" accept="audio/*" onchange="upload(this.files[0])">

    <h2>Recordings</h2>
    <ul id="gallery"></ul>
    <div role="group">
        <button onclick="downloadAll()">Download all</button>
        <button class="contrast" onclick="api('/api/gallery', 'DELETE')">Clear</button>
    </div>
    <audio id="monitor" autoplay></audio>
</main>
<script>
async function api(path, method) {
    const res = await fetch(path, {method: method || 'POST'});
    const body = await res.json().catch(() => ({}));
    if (!res.ok) alert(body.error || res.statusText);
    refresh();
    return body;
}

async function selectTrack(name) {
    await fetch('/api/tracks/select', {method: 'POST', body: JSON.stringify({name})});
    refresh();
}

async function upload(file) {
    const form = new FormData();
    form.append('track', file);
    await fetch('/api/tracks/upload', {method: 'POST', body: form});
    refresh();
}

async function downloadAll() {
    const list = await (await fetch('/api/gallery')).json();
    for (const rec of list.recordings) {
        const a = document.createElement('a');
        a.href = rec.download_url;
        a.download = rec.filename;
        a.click();
        await new Promise(r => setTimeout(r, 200));
    }
}

async function monitor() {
    const pc = new RTCPeerConnection();
    pc.addTransceiver('audio', {direction: 'recvonly'});
    pc.ontrack = e => { document.getElementById('monitor').srcObject = e.streams[0]; };
    await pc.setLocalDescription(await pc.createOffer());
    await new Promise(r => {
        if (pc.iceGatheringState === 'complete') return r();
        pc.onicegatheringstatechange = () => pc.iceGatheringState === 'complete' && r();
    });
    const res = await fetch('/monitor', {method: 'POST', body: JSON.stringify(pc.localDescription)});
    await pc.setRemoteDescription(await res.json());
}

async function refresh() {
    const st = await (await fetch('/api/status')).json();
    document.getElementById('status').textContent = st.state + (st.message ? ' - ' + st.message : '');

    const tracks = await (await fetch('/api/tracks')).json();
    const sel = document.getElementById('tracks');
    sel.innerHTML = '<option value="">Select music</option>' + (tracks.tracks || []).map(t =>
        '<option' + (t.is_selected ? ' selected' : '') + '>' + t.name + '</option>').join('');

    const gallery = await (await fetch('/api/gallery')).json();
    document.getElementById('gallery').innerHTML = gallery.recordings.map(r =>
        '<li><a href="' + r.download_url + '" download="' + r.filename + '">' + r.filename +
        '</a> ' + r.size_human + '</li>').join('');
}

refresh();
setInterval(refresh, 1000);
</script>
</body>
</html>`

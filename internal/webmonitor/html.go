package webmonitor

const indexHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Camera Monitor</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: sans-serif; margin: 0; background: #111; color: #eee; }
        .app { max-width: 960px; margin: 0 auto; padding: 16px; }
        .header { display: flex; justify-content: space-between; align-items: center; }
        .badge { padding: 4px 10px; border-radius: 12px; background: #333; font-size: 13px; }
        img { width: 100%; background: #000; border-radius: 6px; }
        pre { background: #1d1d1d; padding: 12px; border-radius: 6px; white-space: pre-wrap; word-break: break-all; }
        button { margin-right: 8px; padding: 6px 12px; }
    </style>
</head>
<body>
<div class="app">
    <div class="header">
        <h1>Camera Monitor</h1>
        <span class="badge" id="state">connecting...</span>
    </div>
    <img id="preview" src="/stream" alt="Latest captured still">
    <p>
        <button id="btn-start">Start</button>
        <button id="btn-stop">Stop</button>
        <button id="btn-record">Record</button>
        <button id="btn-record-stop">Stop recording</button>
    </p>
    <h2>Server result</h2>
    <pre id="result">waiting for the first cycle...</pre>
    <p id="meta"></p>
</div>
<script>
    const stateEl = document.getElementById('state');
    const resultEl = document.getElementById('result');
    const metaEl = document.getElementById('meta');

    function post(path) { return fetch(path, { method: 'POST' }).then(r => r.json()); }
    document.getElementById('btn-start').onclick = () => post('/api/streaming/start').then(v => stateEl.textContent = v.state);
    document.getElementById('btn-stop').onclick = () => post('/api/streaming/stop').then(v => stateEl.textContent = v.state);
    document.getElementById('btn-record').onclick = () => post('/api/recording/start');
    document.getElementById('btn-record-stop').onclick = () => post('/api/recording/stop');

    fetch('/api/result').then(r => r.json()).then(v => {
        stateEl.textContent = v.state;
        if (v.text) resultEl.textContent = v.text;
    });

    const events = new EventSource('/api/results/stream');
    events.onmessage = (e) => {
        const res = JSON.parse(e.data);
        resultEl.textContent = res.display;
        const ms = new Date(res.completed_at) - new Date(res.started_at);
        metaEl.textContent = '#' + res.seq + ' ' + (res.ok ? 'ok' : 'error') + ' in ' + ms + ' ms';
    };

    setInterval(() => {
        fetch('/api/status').then(r => r.json()).then(s => stateEl.textContent = s.view.state);
    }, 2000);
</script>
</body>
</html>
`

package main

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Reminder Viewer</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem; background: #fafafa; color: #222; }
h1 { font-size: 1.4rem; }
#status { font-size: 0.85rem; color: #888; }
.cols { display: flex; gap: 2rem; }
.col { flex: 1; }
.item { background: #fff; border: 1px solid #ddd; border-radius: 6px; padding: 0.6rem 0.8rem; margin: 0.5rem 0; }
.meta { font-size: 0.75rem; color: #888; }
.rejected { border-color: #e0a0a0; }
</style>
</head>
<body>
<h1>Voice Reminder Assistant</h1>
<div id="status">connecting...</div>
<div class="cols">
  <div class="col"><h2>Reminders</h2><div id="reminders"></div></div>
  <div class="col"><h2>Dialogue turns</h2><div id="turns"></div></div>
</div>
<script>
function render(ev) {
  var p = ev.payload || {};
  var div = document.createElement("div");
  div.className = "item";
  var when = new Date(ev.timestamp).toLocaleTimeString();
  if (ev.eventType === "reminder.created") {
    div.innerHTML = "<strong></strong><div class=meta></div>";
    div.querySelector("strong").textContent = p.summary || "(no summary)";
    div.querySelector(".meta").textContent = when + " due " + p.dueAt;
    document.getElementById("reminders").prepend(div);
  } else {
    if (!p.accepted) div.className += " rejected";
    div.innerHTML = "<span></span><div class=meta></div>";
    div.querySelector("span").textContent = p.utterance || "";
    div.querySelector(".meta").textContent = when + " " + p.state + (p.reason ? " (" + p.reason + ")" : "");
    document.getElementById("turns").prepend(div);
  }
}
function connect() {
  var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
  var status = document.getElementById("status");
  ws.onopen = function () { status.textContent = "live"; };
  ws.onclose = function () { status.textContent = "disconnected, retrying..."; setTimeout(connect, 2000); };
  ws.onmessage = function (m) { render(JSON.parse(m.data)); };
}
connect();
</script>
</body>
</html>
`

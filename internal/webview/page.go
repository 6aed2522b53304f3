package webview

const indexPage = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>serial-plotter</title>
<style>
body { margin: 0; font: 13px monospace; background: #fff; color: #222; }
#legend span { display: inline-block; margin: 4px 8px; }
canvas { width: 100vw; height: 85vh; display: block; }
</style>
</head>
<body>
<div id="legend"></div>
<canvas id="plot"></canvas>
<script>
let mode = "xt", capacity = 500, slots = [], points = [];

function legend() {
  const box = document.getElementById("legend");
  box.replaceChildren();
  for (const s of slots) {
    if (!s) continue;
    const span = document.createElement("span");
    span.style.color = s.color;
    span.textContent = "\u25A0 " + s.label;
    box.appendChild(span);
  }
}

function draw() {
  const c = document.getElementById("plot");
  c.width = c.clientWidth; c.height = c.clientHeight;
  const g = c.getContext("2d");
  let minX = Infinity, maxX = -Infinity, minY = Infinity, maxY = -Infinity;
  points.forEach(ps => ps.forEach((p, i) => {
    const x = mode === "xt" ? i : p.x;
    minX = Math.min(minX, x); maxX = Math.max(maxX, x);
    minY = Math.min(minY, p.y); maxY = Math.max(maxY, p.y);
  }));
  if (!isFinite(minX)) return;
  const sx = x => (x - minX) / ((maxX - minX) || 1) * (c.width - 20) + 10;
  const sy = y => c.height - 10 - (y - minY) / ((maxY - minY) || 1) * (c.height - 20);
  points.forEach((ps, k) => {
    g.strokeStyle = g.fillStyle = (slots[k] || {}).color || "#000";
    g.beginPath();
    ps.forEach((p, i) => {
      const x = sx(mode === "xt" ? i : p.x), y = sy(p.y);
      if (mode === "xt") { i ? g.lineTo(x, y) : g.moveTo(x, y); }
      else g.fillRect(x - 1, y - 1, 3, 3);
    });
    if (mode === "xt") g.stroke();
  });
}

let pending = false;
function schedule() { if (!pending) { pending = true; requestAnimationFrame(() => { pending = false; draw(); }); } }

fetch("/api/snapshot").then(r => r.json()).then(s => {
  mode = s.mode; capacity = s.capacity; slots = s.slots; points = s.points;
  legend(); schedule();
  const es = new EventSource("/events");
  es.onmessage = m => {
    const ev = JSON.parse(m.data);
    switch (ev.type) {
    case "addSeries": slots[ev.index] = ev.slot; points[ev.index] = points[ev.index] || []; legend(); break;
    case "appendPoint":
      const ps = points[ev.index] || (points[ev.index] = []);
      ps.push(ev.point);
      while (ps.length > capacity) ps.shift();
      break;
    case "clearAllSeries":
      slots = []; points = []; legend();
      fetch("/api/snapshot").then(r => r.json()).then(s => { mode = s.mode; schedule(); });
      break;
    case "setCapacity":
      capacity = ev.capacity;
      points.forEach(ps => { while (ps.length > capacity) ps.shift(); });
      break;
    }
    schedule();
  };
});
</script>
</body>
</html>
`

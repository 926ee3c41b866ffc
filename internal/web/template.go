package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/gcode-serial/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"mulPercent": func(ratio float32) float32 {
		return ratio * 100
	},
	"statusClass": func(s string) string {
		switch s {
		case "ACTIVE":
			return "active"
		case "IDLE":
			return "idle"
		}
		return "down"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Printer</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.active { color: green; font-weight: bold; }
.idle { color: #888; }
.down { color: red; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Printer<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Printer</h2>
<table>
<tr><th>Status</th><td id="status" class="{{statusClass (printf "%s" .Status)}}">{{.Status}}</td></tr>
<tr><th>Port</th><td>{{if .Port}}{{.Port}}{{else}}auto{{end}}</td></tr>
<tr><th>Bed</th><td><span id="bed">{{if .Temps}}{{printf "%.1f" .Temps.BedTemp}}{{else}}-{{end}}</span> / {{.TargetBed}}°C</td></tr>
<tr><th>Extruder</th><td><span id="extruder">{{if .Temps}}{{printf "%.1f" .Temps.ExTemp}}{{else}}-{{end}}</span> / {{.TargetExtruder}}°C</td></tr>
<tr><th>Z</th><td><span id="z">{{printf "%.2f" .Z}}</span>{{if .MaxZ}} / {{printf "%.2f" .MaxZ}}{{end}} mm</td></tr>
<tr><th>Fan</th><td>{{printf "%.0f" (mulPercent .Fan)}}%</td></tr>
</table>

<h2>Job</h2>
<table>
<tr><th>File</th><td>{{if .ActiveFile}}{{.ActiveFile.Name}}{{else}}none{{end}}</td></tr>
<tr><th>Remaining</th><td><span id="remaining">{{.Remaining}}</span> of {{.Total}} commands</td></tr>
{{if .PercentDone}}<tr><th>Done</th><td>{{.PercentDone}}% ({{.MinsRemaining}} min left)</td></tr>{{end}}
{{if .LastFinished}}<tr><th>Last print</th><td>{{.LastFinished.Name}} at {{.LastFinished.FinishTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>{{end}}
{{if .LastPrinterAction}}<tr><th>Last printer action</th><td>{{.LastPrinterAction}}</td></tr>{{end}}
<tr><th>Stop presses</th><td>{{.StopPresses}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Baud</th><td>{{.Config.Baud}}</td></tr>
<tr><th>Models</th><td>{{.Config.ModelsDir}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var statusEl = document.getElementById("status");
  var fields = {
    bed: document.getElementById("bed"),
    extruder: document.getElementById("extruder"),
    z: document.getElementById("z"),
    remaining: document.getElementById("remaining")
  };

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function setStatus(s) {
    statusEl.textContent = s;
    statusEl.className = s === "ACTIVE" ? "active" : s === "IDLE" ? "idle" : "down";
  }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");

    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() {
      setDot("err", "offline");
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(ev) {
      try {
        var msg = JSON.parse(ev.data);
        if (msg.kind === "STATE_CHANGE") {
          setStatus(msg.status);
        } else if (msg.kind === "TELEMETRY") {
          switch (msg.type) {
          case "TEMPS":
            fields.bed.textContent = msg.value.bed_temp.toFixed(1);
            fields.extruder.textContent = msg.value.ex_temp.toFixed(1);
            break;
          case "Z_HEIGHT":
            fields.z.textContent = msg.value.toFixed(2);
            break;
          case "PROGRESS":
            fields.remaining.textContent = msg.value;
            break;
          }
        }
      } catch (e) {}
    };
  }
  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}

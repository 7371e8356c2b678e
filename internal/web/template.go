package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/spa-bridge/internal/status"
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
	"onOff": func(b bool) string {
		if b {
			return "ON"
		}
		return "OFF"
	},
	"temp": func(v *int, unit string) string {
		if v == nil {
			return "unknown"
		}
		return fmt.Sprintf("%d°%s", *v, unit)
	},
	"air": func(v *float64) string {
		if v == nil {
			return "unknown"
		}
		return fmt.Sprintf("%.1f°C", *v)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Spa Bridge</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Spa Bridge<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Spa</h2>
<table>
<tr><th>Power</th><td id="power" class="{{if .Panel.Power}}on{{else}}off{{end}}">{{onOff .Panel.Power}}</td></tr>
<tr><th>Heater enabled</th><td id="heating_enabled" class="{{if .Panel.HeatingEnabled}}on{{else}}off{{end}}">{{onOff .Panel.HeatingEnabled}}</td></tr>
<tr><th>Heating</th><td id="heating" class="{{if .Panel.Heating}}on{{else}}off{{end}}">{{onOff .Panel.Heating}}</td></tr>
<tr><th>Filter</th><td id="filter" class="{{if .Panel.Filter}}on{{else}}off{{end}}">{{onOff .Panel.Filter}}</td></tr>
<tr><th>Bubbles</th><td id="bubbles" class="{{if .Panel.Bubbles}}on{{else}}off{{end}}">{{onOff .Panel.Bubbles}}</td></tr>
<tr><th>Water</th><td id="temp">{{temp .Panel.Temp .Panel.TempUnits}}</td></tr>
<tr><th>Target</th><td id="target_temp">{{temp .Panel.TargetTemp .Panel.TempUnits}}</td></tr>
<tr><th>Air</th><td id="air_temp">{{air .Panel.AirTemp}}</td></tr>
<tr><th>Error</th><td id="error">{{if .Panel.Error}}{{.Panel.Error}}{{else}}none{{end}}</td></tr>
<tr><th>Ready</th><td>{{if .Ready}}yes{{else}}no{{end}}</td></tr>
</table>
{{if .Commands}}
<h2>Control</h2>
<form id="console" method="post" action="/console">
<select name="target">
<option>power</option><option>heating_enabled</option><option>filter</option>
<option>bubbles</option><option>target_temp</option><option>temp_units</option>
</select>
<input name="value" size="8" placeholder="ON / 38 / C">
<button type="submit">Send</button>
<span id="console-result"></span>
</form>
{{end}}
<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Bus</h2>
<table>
<tr><th>Transport</th><td>{{.Config.Transport}} {{.Config.Device}}</td></tr>
<tr><th>Frames</th><td>{{.Bus.Frames}}</td></tr>
<tr><th>Dropped</th><td>{{.Bus.Dropped}}</td></tr>
<tr><th>Digit / LED / button</th><td>{{.Spa.Frames.Digits}} / {{.Spa.Frames.LEDs}} / {{.Spa.Frames.Buttons}}</td></tr>
<tr><th>Unknown</th><td>{{.Spa.Frames.Unknown}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var bools = ["power", "heating_enabled", "heating", "filter", "bubbles"];

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function temp(v, unit) {
    return v === null || v === undefined ? "unknown" : v + "°" + unit;
  }

  function render(spa) {
    bools.forEach(function(k) {
      var el = document.getElementById(k);
      el.textContent = spa[k] ? "ON" : "OFF";
      el.className = spa[k] ? "on" : "off";
    });
    document.getElementById("temp").textContent = temp(spa.temp, spa.temp_units);
    document.getElementById("target_temp").textContent = temp(spa.target_temp, spa.temp_units);
    document.getElementById("air_temp").textContent =
      spa.air_temp === null || spa.air_temp === undefined ? "unknown" : spa.air_temp.toFixed(1) + "°C";
    document.getElementById("error").textContent = spa.error || "none";
  }

  var ws;
  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    ws = new WebSocket(proto + location.host + "/ws");
    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() {
      setDot("err", "offline");
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(ev) {
      try {
        var msg = JSON.parse(ev.data);
        if (msg.type === "state" && msg.status) render(msg.status.spa);
        if (msg.type === "change" && msg.spa) render(msg.spa);
        var out = document.getElementById("console-result");
        if (out && msg.type === "ack") out.textContent = "sent " + msg.intent;
        if (out && msg.type === "error") out.textContent = msg.error;
      } catch (e) {}
    };
  }
  connect();

  var form = document.getElementById("console");
  if (form) {
    form.onsubmit = function(e) {
      e.preventDefault();
      ws.send(JSON.stringify({type: "set", target: form.target.value, value: form.value.value}));
    };
  }
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, commands bool) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Panel    status.SpaJSON
		Uptime   time.Duration
		Commands bool
	}{
		Snapshot: snap,
		Panel:    status.BuildSpa(snap),
		Uptime:   snap.Uptime(),
		Commands: commands,
	}
	indexTmpl.Execute(w, data)
}

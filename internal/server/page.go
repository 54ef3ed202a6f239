package server

// The page renders the current view in place and then swaps in every update
// pushed over /live. Elements carrying data-on-input send their value back as
// a sort request.
const pageHead = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>AdEx market campaigns</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
td { padding: 0.3em 0.8em; border-bottom: 1px solid #ddd; }
tr:first-child td { font-weight: bold; }
p.status { color: #666; }
</style>
</head>
<body>
<div id="app">`

const pageTail = `</div>
<script>
(function () {
  var app = document.getElementById("app");
  var scheme = location.protocol === "https:" ? "wss://" : "ws://";
  var socket;

  function connect() {
    socket = new WebSocket(scheme + location.host + "/live");
    socket.onmessage = function (ev) {
      var update = JSON.parse(ev.data);
      app.innerHTML = update.html;
    };
    socket.onclose = function () {
      setTimeout(connect, 2000);
    };
  }

  document.addEventListener("input", function (ev) {
    if (ev.target.dataset.onInput === "sort" && socket.readyState === WebSocket.OPEN) {
      socket.send(JSON.stringify({ sort: ev.target.value }));
    }
  });

  connect();
})();
</script>
</body>
</html>
`

package http

import (
	"net/http"
)

// viewerHTML is a minimal chart viewer drawing the vector tile endpoint
// with MapLibre GL and listing the charts with visibility toggles.
const viewerHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>charttiler</title>
    <link rel="stylesheet" href="https://unpkg.com/maplibre-gl@4/dist/maplibre-gl.css">
    <script src="https://unpkg.com/maplibre-gl@4/dist/maplibre-gl.js"></script>
    <style>
        body { margin: 0; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; }
        #map { position: absolute; top: 0; bottom: 0; left: 0; right: 280px; }
        #charts { position: absolute; top: 0; bottom: 0; right: 0; width: 280px; overflow-y: auto;
                  border-left: 1px solid #e2e8f0; font-size: 13px; }
        #charts h2 { font-size: 14px; margin: 8px; }
        #charts label { display: block; padding: 2px 8px; }
        #charts small { color: #64748b; }
    </style>
</head>
<body>
<div id="map"></div>
<div id="charts">
    <h2>Charts <small id="count"></small></h2>
    <label><input type="checkbox" id="all" checked> all</label>
    <div id="list"></div>
</div>
<script>
(function() {
    const fill = function(layer, color) {
        return { id: layer, type: 'fill', source: 'charts', 'source-layer': layer, paint: { 'fill-color': color } };
    };
    const line = function(layer, color, width) {
        return { id: layer, type: 'line', source: 'charts', 'source-layer': layer,
                 paint: { 'line-color': color, 'line-width': width } };
    };
    const dots = function(layer, color, radius) {
        return { id: layer, type: 'circle', source: 'charts', 'source-layer': layer,
                 paint: { 'circle-color': color, 'circle-radius': radius } };
    };

    const map = new maplibregl.Map({
        container: 'map',
        center: [10.5, 54.5],
        zoom: 7,
        style: {
            version: 8,
            glyphs: 'https://demotiles.maplibre.org/font/{fontstack}/{range}.pbf',
            sources: {
                charts: { type: 'vector', tiles: [location.origin + '/api/v1/tiles/{z}/{x}/{y}.mvt'], maxzoom: 23 }
            },
            layers: [
                { id: 'background', type: 'background', paint: { 'background-color': '#d4e6f4' } },
                fill('depth_areas', '#e8f1f8'),
                fill('land', '#f5e9c6'),
                fill('built_up', '#e0c890'),
                fill('constructions', '#a08060'),
                line('depth_contours', '#7aa3c2', 0.6),
                line('coastlines', '#5a4a2a', 1),
                line('roads', '#8a6d3b', 0.8),
                dots('rocks', '#333333', 2),
                dots('beacons', '#6b21a8', 3),
                dots('buoys', '#dc2626', 3),
                { id: 'soundings', type: 'symbol', source: 'charts', 'source-layer': 'soundings',
                  layout: { 'text-field': ['to-string', ['get', 'depth']], 'text-size': 10, 'text-font': ['Open Sans Regular'] } },
                { id: 'labels', type: 'symbol', source: 'charts', 'source-layer': 'labels',
                  layout: { 'text-field': ['get', 'name'], 'text-size': 12, 'text-font': ['Open Sans Regular'] } }
            ]
        }
    });
    map.addControl(new maplibregl.NavigationControl());

    const list = document.getElementById('list');

    function reloadTiles() {
        const source = map.getSource('charts');
        if (source) {
            source.setTiles(source.tiles);
        }
    }

    async function setEnabled(url, enabled) {
        await fetch(url, {
            method: 'PUT',
            headers: { 'Content-Type': 'application/json' },
            body: JSON.stringify({ enabled: enabled })
        });
    }

    async function loadCharts() {
        const response = await fetch('/api/v1/charts');
        const data = await response.json();
        document.getElementById('count').textContent = data.enabled + '/' + data.count;
        list.textContent = '';
        (data.charts || []).forEach(function(chart) {
            const label = document.createElement('label');
            const box = document.createElement('input');
            box.type = 'checkbox';
            box.checked = chart.enabled;
            box.addEventListener('change', function() {
                setEnabled('/api/v1/charts/' + encodeURIComponent(chart.name) + '/enabled', box.checked);
            });
            label.appendChild(box);
            label.appendChild(document.createTextNode(' ' + chart.name + ' '));
            const scale = document.createElement('small');
            scale.textContent = '1:' + chart.nativeScale;
            label.appendChild(scale);
            list.appendChild(label);
        });
    }

    document.getElementById('all').addEventListener('change', function(e) {
        setEnabled('/api/v1/charts/enabled', e.target.checked);
    });

    async function watchEvents() {
        const response = await fetch('/api/v1/events');
        const reader = response.body.getReader();
        const decoder = new TextDecoder();
        let buffered = '';
        for (;;) {
            const { value, done } = await reader.read();
            if (done) {
                break;
            }
            buffered += decoder.decode(value, { stream: true });
            let newline;
            while ((newline = buffered.indexOf('\n')) >= 0) {
                const event = JSON.parse(buffered.slice(0, newline));
                buffered = buffered.slice(newline + 1);
                if (event.kind === 'sourcesUpdated' || event.kind === 'chartsChanged') {
                    loadCharts();
                }
                reloadTiles();
            }
        }
        setTimeout(watchEvents, 5000);
    }

    loadCharts();
    watchEvents().catch(function() { setTimeout(watchEvents, 5000); });
})();
</script>
</body>
</html>
`

// handleViewer serves the chart viewer.
func (s *Server) handleViewer(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(viewerHTML))
}

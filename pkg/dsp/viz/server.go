package viz

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/kestrelsdr/kestrel/pkg/iq"
	"github.com/kestrelsdr/kestrel/pkg/util"
)

const widebandPlotSize = 2048

// Producer renders a plot image on demand.
type Producer interface {
	Name() string
	RenderPNG() ([]byte, error)
}

// PowerSource reports a live mean-square power reading, streamed to clients
// over the websocket endpoint.
type PowerSource interface {
	Name() string
	GetMagSq() float64
}

// Server exposes rendered spectrum plots over HTTP and live channel power
// over a websocket.
type Server struct {
	mu             sync.RWMutex
	srv            *http.Server
	producers      map[string]Producer
	powerSources   map[string]PowerSource
	updateInterval time.Duration
	upgrader       websocket.Upgrader

	wideband *SpectrumPlotter
}

func NewServer(port int, updateInterval time.Duration) *Server {
	return &Server{
		srv:            &http.Server{Addr: fmt.Sprintf(":%d", port)},
		producers:      make(map[string]Producer),
		powerSources:   make(map[string]PowerSource),
		updateInterval: updateInterval,
	}
}

func (s *Server) Register(p Producer) {
	s.mu.Lock()
	s.producers[p.Name()] = p
	s.mu.Unlock()
}

func (s *Server) RegisterPower(p PowerSource) {
	s.mu.Lock()
	s.powerSources[p.Name()] = p
	s.mu.Unlock()
}

// Observe feeds a wideband segment into the capture-wide spectrum plot.
func (s *Server) Observe(seg *iq.Segment) {
	s.mu.Lock()
	if s.wideband == nil {
		s.wideband = NewSpectrumPlotter("wideband", widebandPlotSize, seg.SampleRate)
		s.producers[s.wideband.Name()] = s.wideband
	}
	wideband := s.wideband
	s.mu.Unlock()

	wideband.Append(seg.Data)
}

func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}

func (s *Server) producerNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.producers))
	for name := range s.producers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) Run(ctx context.Context) error {
	handler := httprouter.New()

	handler.GET("/", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Add("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Kestrel</title></head>
<body style='background-color: black; color: white'>
<pre id="power"></pre>
<script type="text/javascript">
	var ws = new WebSocket('ws://' + window.location.host + '/ws');
	ws.onmessage = function(ev) {
		var levels = JSON.parse(ev.data);
		var lines = [];
		for (var name in levels) {
			lines.push(name + ': ' + levels[name].toFixed(1) + ' dB');
		}
		document.getElementById('power').textContent = lines.join('\n');
	};
	window.onload = function() {
		var imgs = document.getElementsByTagName('img');
		setInterval(function() {
			for (var i = 0; i < imgs.length; i++) {
				imgs[i].src = imgs[i].src.split("?")[0] + "?" + new Date().getTime();
			}
		}, ` + fmt.Sprintf("%d", s.updateInterval.Milliseconds()) + `);
	}
</script>
<div style="display: flex; flex-direction: row; flex-wrap: wrap">`))
		for _, name := range s.producerNames() {
			w.Write([]byte(fmt.Sprintf(`<div><img src="/img/%s?%d" /></div>`, name, time.Now().UnixMicro())))
		}
		w.Write([]byte(`</div></body></html>`))
	})

	handler.GET("/img/:img", func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		s.mu.RLock()
		p, ok := s.producers[params.ByName("img")]
		s.mu.RUnlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		data, err := p.RenderPNG()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Add("Content-Type", "image/png")
		w.Write(data)
	})

	handler.GET("/ws", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ticker := time.NewTicker(s.updateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.RLock()
				levels := make(map[string]float64, len(s.powerSources))
				for name, src := range s.powerSources {
					levels[name] = util.DBFromPower(src.GetMagSq())
				}
				s.mu.RUnlock()

				if err := conn.WriteJSON(levels); err != nil {
					return
				}
			}
		}
	})

	s.srv.Handler = handler

	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package opcua exposes an OPC UA server as an FPC. Attributes map to variable nodes
// read with Read requests; device events map to nodes whose data changes are monitored.
package opcua

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/rulego/fpcql/device"
	"github.com/rulego/fpcql/logger"
	"github.com/rulego/fpcql/types"
)

// Config captures the OPC UA session and the node mapping
type Config struct {
	Endpoint        string        `yaml:"endpoint"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	SecurityMode    string        `yaml:"security_mode"`
	SecurityPolicy  string        `yaml:"security_policy"`
	ApplicationName string        `yaml:"application_name"`
	PublishInterval time.Duration `yaml:"publish_interval"`
	// Attributes maps attribute names to node ids, e.g. temp: "ns=2;s=Boiler.Temp"
	Attributes map[string]string `yaml:"attributes"`
	// Events maps event names to the node whose value changes signal the event
	Events map[string]string `yaml:"events"`
}

// ApplyDefaults fills optional settings
func (c *Config) ApplyDefaults() {
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "fpcql"
	}
	if c.PublishInterval <= 0 {
		c.PublishInterval = 250 * time.Millisecond
	}
}

// Validate checks the endpoint and mapping
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("%w: opcua endpoint is required", types.ErrInvalidConfig)
	}
	if len(c.Attributes) == 0 && len(c.Events) == 0 {
		return fmt.Errorf("%w: opcua device maps no attributes or events", types.ErrInvalidConfig)
	}
	return nil
}

// reader is the part of *opcua.Client used for acquisitions
type reader interface {
	Read(ctx context.Context, req *ua.ReadRequest) (*ua.ReadResponse, error)
}

// Device is an FPC backed by an OPC UA session
type Device struct {
	cfg    Config
	nodes  map[string]*ua.NodeID
	events map[string]*ua.NodeID
	log    logger.Logger

	mu     sync.Mutex
	client *opcua.Client
	reader reader
}

var _ device.Device = (*Device)(nil)

// New parses the node mapping; Connect opens the session
func New(cfg Config, log logger.Logger) (*Device, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.GetDefault()
	}
	d := &Device{
		cfg:    cfg,
		nodes:  make(map[string]*ua.NodeID, len(cfg.Attributes)),
		events: make(map[string]*ua.NodeID, len(cfg.Events)),
		log:    log,
	}
	for attr, raw := range cfg.Attributes {
		id, err := parseNodeID(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: attribute %s: parse node id %q: %v", types.ErrInvalidConfig, attr, raw, err)
		}
		d.nodes[attr] = id
	}
	for name, raw := range cfg.Events {
		id, err := parseNodeID(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: event %s: parse node id %q: %v", types.ErrInvalidConfig, name, raw, err)
		}
		d.events[name] = id
	}
	return d, nil
}

var nodeIDPrefixes = []string{"ns=", "nsu=", "i=", "s=", "g=", "b="}

// parseNodeID accepts the string forms of a node id; ua.ParseNodeID alone takes any
// other text as a string identifier in namespace 0
func parseNodeID(raw string) (*ua.NodeID, error) {
	for _, p := range nodeIDPrefixes {
		if strings.HasPrefix(raw, p) {
			return ua.ParseNodeID(raw)
		}
	}
	return nil, fmt.Errorf("want one of %s", strings.Join(nodeIDPrefixes, " "))
}

// Connect opens the OPC UA session
func (d *Device) Connect(ctx context.Context) error {
	client, err := opcua.NewClient(d.cfg.Endpoint, d.clientOptions()...)
	if err != nil {
		return fmt.Errorf("opcua new client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("opcua connect: %w", err)
	}
	d.mu.Lock()
	d.client = client
	d.reader = client
	d.mu.Unlock()
	d.log.Info("opcua: connected to %s", d.cfg.Endpoint)
	return nil
}

// Close ends the session
func (d *Device) Close(ctx context.Context) error {
	d.mu.Lock()
	client := d.client
	d.client = nil
	d.reader = nil
	d.mu.Unlock()
	if client == nil {
		return nil
	}
	if err := client.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (d *Device) clientOptions() []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(d.cfg.SecurityMode)),
		opcua.SecurityPolicy(d.cfg.SecurityPolicy),
		opcua.ApplicationName(d.cfg.ApplicationName),
		opcua.AutoReconnect(true),
	}
	if d.cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(d.cfg.Username, d.cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	return opts
}

func (d *Device) session() (reader, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reader == nil {
		return nil, fmt.Errorf("%w: opcua session not connected", types.ErrDeviceAcquisition)
	}
	return d.reader, nil
}

func (d *Device) readRequest(attrs []string) (*ua.ReadRequest, error) {
	req := &ua.ReadRequest{
		NodesToRead:        make([]*ua.ReadValueID, 0, len(attrs)),
		TimestampsToReturn: ua.TimestampsToReturnBoth,
	}
	for _, a := range attrs {
		id, ok := d.nodes[a]
		if !ok {
			return nil, fmt.Errorf("%w: attribute %s is not mapped to a node", types.ErrDeviceAcquisition, a)
		}
		req.NodesToRead = append(req.NodesToRead, &ua.ReadValueID{NodeID: id, AttributeID: ua.AttributeIDValue})
	}
	return req, nil
}

// read performs one Read request and turns the results into a sample. Bad status
// codes yield NULL values; the sample takes the newest server timestamp.
func (d *Device) read(ctx context.Context, r reader, attrs []string, req *ua.ReadRequest) (*types.Sample, error) {
	resp, err := r.Read(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Results) != len(attrs) {
		return nil, fmt.Errorf("read returned %d results for %d nodes", len(resp.Results), len(attrs))
	}
	values := make(map[string]interface{}, len(attrs))
	var ts time.Time
	for i, dv := range resp.Results {
		if dv == nil || dv.Status != ua.StatusOK {
			values[attrs[i]] = nil
			continue
		}
		values[attrs[i]] = variantValue(dv.Value)
		t := dv.ServerTimestamp
		if t.IsZero() {
			t = dv.SourceTimestamp
		}
		if t.After(ts) {
			ts = t
		}
	}
	return types.NewSample(ts, values), nil
}

// AcquireOnce implements device.Device
func (d *Device) AcquireOnce(ctx context.Context, attrs []string, tag device.Tag, out chan<- device.Event) (device.Task, error) {
	r, err := d.session()
	if err != nil {
		return nil, err
	}
	req, err := d.readRequest(attrs)
	if err != nil {
		return nil, err
	}
	t := device.NewBaseTask(tag)
	go func() {
		s, err := d.read(ctx, r, attrs, req)
		if t.Cancelled() {
			device.Deliver(ctx, out, t.Complete())
			return
		}
		if err != nil {
			device.Deliver(ctx, out, t.Failure(err))
			return
		}
		if device.Deliver(ctx, out, t.Data(s)) {
			device.Deliver(ctx, out, t.Complete())
		}
	}()
	return t, nil
}

// AcquirePeriodic implements device.Device
func (d *Device) AcquirePeriodic(ctx context.Context, attrs []string, period time.Duration, tag device.Tag, out chan<- device.Event) (device.Task, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: period must be positive", types.ErrDeviceAcquisition)
	}
	r, err := d.session()
	if err != nil {
		return nil, err
	}
	req, err := d.readRequest(attrs)
	if err != nil {
		return nil, err
	}
	t := device.NewBaseTask(tag)
	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			s, err := d.read(ctx, r, attrs, req)
			switch {
			case t.Cancelled():
				device.Deliver(ctx, out, t.Complete())
				return
			case err != nil:
				device.Deliver(ctx, out, t.Failure(err))
				return
			case !device.Deliver(ctx, out, t.Data(s)):
				return
			}
			select {
			case <-t.Done():
				device.Deliver(ctx, out, t.Complete())
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return t, nil
}

// Subscribe implements device.Device. Each data change of an event node fires the event.
func (d *Device) Subscribe(ctx context.Context, events []string, tag device.Tag, out chan<- device.Event) (device.Task, error) {
	d.mu.Lock()
	client := d.client
	d.mu.Unlock()
	if client == nil {
		return nil, fmt.Errorf("%w: opcua session not connected", types.ErrDeviceAcquisition)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: no events to subscribe to", types.ErrDeviceAcquisition)
	}

	notifyCh := make(chan *opcua.PublishNotificationData, len(events)*4)
	sub, err := client.Subscribe(ctx, &opcua.SubscriptionParameters{Interval: d.cfg.PublishInterval}, notifyCh)
	if err != nil {
		return nil, fmt.Errorf("%w: opcua subscribe: %v", types.ErrDeviceAcquisition, err)
	}
	handles, err := d.monitor(ctx, sub, events)
	if err != nil {
		_ = sub.Cancel(ctx)
		return nil, err
	}

	t := device.NewBaseTask(tag)
	go func() {
		defer func() {
			cancelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := sub.Cancel(cancelCtx); err != nil && !errors.Is(err, context.Canceled) {
				d.log.Warn("opcua: cancel subscription: %v", err)
			}
		}()
		for {
			select {
			case <-t.Done():
				device.Deliver(ctx, out, t.Complete())
				return
			case <-ctx.Done():
				return
			case notif, ok := <-notifyCh:
				if !ok {
					device.Deliver(ctx, out, t.Complete())
					return
				}
				if notif == nil {
					continue
				}
				if notif.Error != nil {
					device.Deliver(ctx, out, t.Failure(notif.Error))
					return
				}
				for _, name := range changedEvents(notif.Value, handles) {
					if !device.Deliver(ctx, out, t.Named(name)) {
						return
					}
				}
			}
		}
	}()
	return t, nil
}

func (d *Device) monitor(ctx context.Context, sub *opcua.Subscription, events []string) (map[uint32]string, error) {
	handles := make(map[uint32]string, len(events))
	sorted := append([]string(nil), events...)
	sort.Strings(sorted)
	for i, name := range sorted {
		id, ok := d.events[name]
		if !ok {
			return nil, fmt.Errorf("%w: event %s is not mapped to a node", types.ErrDeviceAcquisition, name)
		}
		handle := uint32(i + 1)
		req := opcua.NewMonitoredItemCreateRequestWithDefaults(id, ua.AttributeIDValue, handle)
		res, err := sub.Monitor(ctx, ua.TimestampsToReturnBoth, req)
		if err != nil {
			return nil, fmt.Errorf("%w: monitor %s: %v", types.ErrDeviceAcquisition, name, err)
		}
		if len(res.Results) == 0 || res.Results[0].StatusCode != ua.StatusOK {
			return nil, fmt.Errorf("%w: monitor %s rejected", types.ErrDeviceAcquisition, name)
		}
		handles[handle] = name
	}
	return handles, nil
}

// changedEvents maps a publish notification onto the event names it signals
func changedEvents(val interface{}, handles map[uint32]string) []string {
	data, ok := val.(*ua.DataChangeNotification)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(data.MonitoredItems))
	for _, item := range data.MonitoredItems {
		if name, ok := handles[item.ClientHandle]; ok {
			names = append(names, name)
		}
	}
	return names
}

// variantValue unwraps a variant into a plain Go value
func variantValue(v *ua.Variant) interface{} {
	if v == nil {
		return nil
	}
	switch val := v.Value().(type) {
	case *ua.LocalizedText:
		return val.Text
	case *ua.NodeID:
		return val.String()
	default:
		return val
	}
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

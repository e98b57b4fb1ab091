package flight

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/tiiuae/rclgo/pkg/ros2"
	builtin_interfaces "github.com/tiiuae/rclgo/pkg/ros2/msgs/builtin_interfaces/msg"
	geometry_msgs "github.com/tiiuae/rclgo/pkg/ros2/msgs/geometry_msgs/msg"
	std_msgs "github.com/tiiuae/rclgo/pkg/ros2/msgs/std_msgs/msg"
	std_srvs "github.com/tiiuae/rclgo/pkg/ros2/msgs/std_srvs/srv"
	"github.com/tiiuae/rclgo/pkg/ros2/ros2types"
	"go.uber.org/zap"

	"github.com/tiiuae/patrolengine/internal/types"
)

const (
	setpointTopic = "navigation/setpoint"
	setModeTopic  = "control_interface/set_mode"
	landService   = "control_interface/land"
)

// ROSCommander drives the flight stack over ROS 2. The setpoint goes out as
// a PoseStamped with latitude, longitude and altitude in position x, y, z.
type ROSCommander struct {
	pubSetpoint *ros2.Publisher
	pubSetMode  *ros2.Publisher
	land        *ros2.Client
	log         *zap.Logger
}

func NewROSCommander(ctx context.Context, rclContext *ros2.Context, node *ros2.Node, log *zap.Logger) (*ROSCommander, error) {
	pubSetpoint, err := node.NewPublisher(setpointTopic, &geometry_msgs.PoseStamped{})
	if err != nil {
		return nil, errors.Errorf("failed to create publisher %s: %v", setpointTopic, err)
	}
	pubSetMode, err := node.NewPublisher(setModeTopic, &std_msgs.String{})
	if err != nil {
		pubSetpoint.Close()
		return nil, errors.Errorf("failed to create publisher %s: %v", setModeTopic, err)
	}
	land, err := createTriggerService(ctx, rclContext, node, landService)
	if err != nil {
		pubSetpoint.Close()
		pubSetMode.Close()
		return nil, err
	}

	return &ROSCommander{pubSetpoint, pubSetMode, land, log}, nil
}

func (c *ROSCommander) PublishSetpoint(ctx context.Context, sp types.Setpoint) error {
	c.pubSetpoint.Publish(createPose(sp))
	return ctx.Err()
}

func (c *ROSCommander) SetFlightMode(ctx context.Context, mode string) error {
	c.log.Info("set flight mode", zap.String("mode", mode))
	c.pubSetMode.Publish(createString(mode))
	return ctx.Err()
}

func (c *ROSCommander) Land(ctx context.Context) error {
	req := std_srvs.NewTrigger_Request()
	res, _, err := c.land.Send(ctx, req)
	if err != nil {
		return errors.Errorf("land service call failed: %v", err)
	}
	c.log.Info("land", zap.Any("response", res))
	return nil
}

func (c *ROSCommander) Close() {
	c.pubSetpoint.Close()
	c.pubSetMode.Close()
	c.land.Close()
}

func createTriggerService(ctx context.Context, rclContext *ros2.Context, node *ros2.Node, name string) (*ros2.Client, error) {
	opt := &ros2.ClientOptions{Qos: ros2.NewRmwQosProfileServicesDefault()}
	client, err := node.NewClient(name, std_srvs.Trigger, opt)
	if err != nil {
		return nil, errors.Errorf("failed to create client %s: %v", name, err)
	}

	ws, err := rclContext.NewWaitSet(200 * time.Millisecond)
	if err != nil {
		client.Close()
		return nil, errors.Errorf("failed to create wait set for %s: %v", name, err)
	}

	ws.AddClients(client)
	ws.RunGoroutine(ctx)

	return client, nil
}

func createString(value string) ros2types.ROS2Msg {
	rosmsg := std_msgs.NewString()
	rosmsg.Data.SetDefaults(value)
	return rosmsg
}

func createPose(sp types.Setpoint) *geometry_msgs.PoseStamped {
	pose := geometry_msgs.NewPoseStamped()
	pose.Header = *std_msgs.NewHeader()
	pose.Header.Stamp = *builtin_interfaces.NewTime()
	pose.Header.Stamp.Sec = int32(sp.Stamp.Unix())
	pose.Header.Stamp.Nanosec = uint32(sp.Stamp.Nanosecond())
	pose.Header.FrameId = types.DefaultFrameID
	pose.Pose.Position.X = sp.Lat
	pose.Pose.Position.Y = sp.Lon
	pose.Pose.Position.Z = sp.Alt
	pose.Pose.Orientation.X = sp.Orientation.X
	pose.Pose.Orientation.Y = sp.Orientation.Y
	pose.Pose.Orientation.Z = sp.Orientation.Z
	pose.Pose.Orientation.W = sp.Orientation.W
	return pose
}
